// ABOUTME: Account operations: signup, login, logout, and password reset.
// ABOUTME: Login writes the session before returning; incomplete responses clear it.
package api

import (
	"context"
	"strings"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/models"
)

// Signup creates an account. Nothing is written to the session; the user
// logs in afterwards.
func (c *Client) Signup(ctx context.Context, req models.SignupRequest) error {
	if err := prepareSignup(&req); err != nil {
		return err
	}
	p, err := jsonPayload(req)
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to encode signup")
	}
	return c.mutate(ctx, SignupUser, "", p, nil)
}

// prepareSignup validates req and drops fields that do not apply to its
// user type.
func prepareSignup(req *models.SignupRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Nom = strings.TrimSpace(req.Nom)
	req.Prenom = strings.TrimSpace(req.Prenom)

	missing := map[string][]string{}
	for field, value := range map[string]string{
		"email":     req.Email,
		"nom":       req.Nom,
		"prenom":    req.Prenom,
		"username":  req.Username,
		"password":  req.Password,
		"user_type": req.UserType,
	} {
		if value == "" {
			missing[field] = []string{"This field is required."}
		}
	}
	if len(missing) > 0 {
		return &apierr.Error{Kind: apierr.KindValidation, Message: "Please fill in all fields.", Fields: missing}
	}

	if req.Genres == nil {
		req.Genres = []string{}
	}
	switch req.UserType {
	case models.UserTypeArtist:
		if len(req.Genres) == 0 {
			return apierr.New(apierr.KindValidation, "Please enter at least one genre.")
		}
		if len(req.Talents) == 0 {
			return apierr.New(apierr.KindValidation, "Please enter at least one talent.")
		}
		req.StudioName = nil
	case models.UserTypeProducer:
		if req.StudioName == nil || strings.TrimSpace(*req.StudioName) == "" {
			return apierr.New(apierr.KindValidation, "Please enter the studio name.")
		}
		name := strings.TrimSpace(*req.StudioName)
		req.StudioName = &name
		req.Talents = []string{}
	default:
		return apierr.New(apierr.KindValidation, "Unknown user type %q.", req.UserType)
	}
	return nil
}

// Login authenticates and stores the returned credentials in the session.
// A response missing access, refresh, or username clears any previous
// session and fails.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, apierr.New(apierr.KindValidation, "Please enter both email and password.")
	}

	p, err := jsonPayload(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUnexpected, err, "failed to encode login")
	}
	var resp models.LoginResponse
	if err := c.mutate(ctx, LoginUser, "", p, &resp); err != nil {
		return nil, err
	}

	c.cache.Reset()
	if !resp.Complete() {
		c.session.Logout(ctx)
		return nil, apierr.New(apierr.KindUnexpected, "invalid response: missing required data")
	}

	c.session.SetCredentials(ctx, models.Credentials{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		Username:     resp.Username,
		User: &models.User{
			Username:       resp.Username,
			ProfilePicture: c.media.Normalize(resp.ProfilePicture),
			UserType:       resp.UserType,
		},
	})
	return &resp, nil
}

// Logout clears the session and every cached query.
func (c *Client) Logout(ctx context.Context) {
	c.session.Logout(ctx)
	c.cache.Reset()
}

// ForgotPassword asks the backend to email a reset code.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apierr.New(apierr.KindValidation, "Please enter your email.")
	}
	p, err := jsonPayload(models.ForgotPasswordRequest{Email: email})
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to encode request")
	}
	return c.mutate(ctx, ForgotPassword, "", p, nil)
}

// ResetPassword sets a new password using the emailed code.
func (c *Client) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return apierr.New(apierr.KindValidation, "Please enter your email, the code, and a new password.")
	}
	p, err := jsonPayload(req)
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to encode request")
	}
	return c.mutate(ctx, ResetPassword, "", p, nil)
}
