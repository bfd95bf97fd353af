// ABOUTME: Login function used by the wizard, backed by the API client.
// ABOUTME: Builds a client for the entered origin and stores the session on success.
package tui

import (
	"context"

	"github.com/2389-research/backstage/internal/api"
	"github.com/2389-research/backstage/internal/models"
	"github.com/2389-research/backstage/internal/session"
)

// NewLoginFn returns a LoginFn that authenticates against whichever origin
// the user entered and writes the credentials into store.
func NewLoginFn(store session.Store, opts ...api.Option) LoginFn {
	return func(ctx context.Context, origin, email, password string) (string, error) {
		client, err := api.New(origin, store, opts...)
		if err != nil {
			return "", err
		}
		resp, err := client.Login(ctx, models.LoginRequest{Email: email, Password: password})
		if err != nil {
			return "", err
		}
		return resp.Username, nil
	}
}
