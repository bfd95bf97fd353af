// ABOUTME: MCP tool implementations for account and session operations.
// ABOUTME: Registers login, logout, whoami, signup, and password reset tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/backstage/internal/models"
	"github.com/2389-research/backstage/internal/session"
)

func (s *Server) registerAuthTools() {
	s.addTool(&gomcp.Tool{
		Name:        "login",
		Description: "Log in to the backend with an email and password. Replaces any existing session.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email": {"type": "string", "description": "Account email.", "minLength": 1},
				"password": {"type": "string", "description": "Account password.", "minLength": 1}
			},
			"required": ["email", "password"]
		}`),
	}, s.handleLogin)

	s.addTool(&gomcp.Tool{
		Name:        "logout",
		Description: "Clear the current session and every cached result.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleLogout)

	s.addTool(&gomcp.Tool{
		Name:        "whoami",
		Description: "Show the logged-in user and when the access token expires.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleWhoami)

	s.addTool(&gomcp.Tool{
		Name:        "signup",
		Description: "Create an account. Artists need genres and talents; producers need a studio name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email": {"type": "string"},
				"nom": {"type": "string", "description": "First name."},
				"prenom": {"type": "string", "description": "Last name."},
				"username": {"type": "string"},
				"password": {"type": "string"},
				"user_type": {"type": "string", "enum": ["artist", "producer"]},
				"genres": {"type": "array", "items": {"type": "string"}},
				"talents": {"type": "array", "items": {"type": "string"}},
				"studio_name": {"type": "string"}
			},
			"required": ["email", "nom", "prenom", "username", "password", "user_type"]
		}`),
	}, s.handleSignup)

	s.addTool(&gomcp.Tool{
		Name:        "reset_password",
		Description: "Request a password reset code, or set a new password when code and new_password are given.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email": {"type": "string", "minLength": 1},
				"code": {"type": "string", "description": "Code from the reset email."},
				"new_password": {"type": "string"}
			},
			"required": ["email"]
		}`),
	}, s.handleResetPassword)
}

func (s *Server) handleLogin(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args models.LoginRequest
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	resp, err := s.client.Login(ctx, args)
	if err != nil {
		return apiError(err), nil
	}
	return toolText("Logged in as %s", resp.Username), nil
}

func (s *Server) handleLogout(ctx context.Context, _ *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	s.client.Logout(ctx)
	return toolText("Logged out"), nil
}

func (s *Server) handleWhoami(_ context.Context, _ *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	sess := s.client.Session().Session()
	if !sess.Authenticated() {
		return toolText("Not logged in."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Logged in as %s", sess.Username)
	if sess.User != nil && sess.User.UserType != "" {
		fmt.Fprintf(&sb, " (%s)", sess.User.UserType)
	}
	sb.WriteString("\n")
	if sess.User != nil && sess.User.ProfilePicture != "" {
		fmt.Fprintf(&sb, "Picture: %s\n", sess.User.ProfilePicture)
	}
	if exp, ok := session.TokenExpiry(sess.AccessToken); ok {
		fmt.Fprintf(&sb, "Token expires: %s\n", exp.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "Backend: %s", s.client.Origin())
	return toolText("%s", sb.String()), nil
}

func (s *Server) handleSignup(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		models.SignupRequest
		StudioName string `json:"studio_name"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	signup := args.SignupRequest
	if args.StudioName != "" {
		studio := args.StudioName
		signup.StudioName = &studio
	}
	if err := s.client.Signup(ctx, signup); err != nil {
		return apiError(err), nil
	}
	return toolText("Account %s created. Use the login tool to sign in.", strings.TrimSpace(signup.Username)), nil
}

func (s *Server) handleResetPassword(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args models.ResetPasswordRequest
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	if args.Code == "" && args.NewPassword == "" {
		if err := s.client.ForgotPassword(ctx, args.Email); err != nil {
			return apiError(err), nil
		}
		return toolText("Reset code sent to %s", strings.TrimSpace(args.Email)), nil
	}

	if err := s.client.ResetPassword(ctx, args); err != nil {
		return apiError(err), nil
	}
	return toolText("Password updated. Use the login tool to sign in."), nil
}
