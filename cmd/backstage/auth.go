// ABOUTME: CLI commands for account and session operations.
// ABOUTME: Provides signup, login, logout, whoami, and password reset subcommands.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/backstage/internal/models"
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long:  "Create an artist or producer account. Artists need genres and talents; producers need a studio name.",
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long:  "Authenticate with email and password. The session is kept until logout or expiry.",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE:  runWhoami,
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Recover a forgotten password",
}

var passwordForgotCmd = &cobra.Command{
	Use:   "forgot <email>",
	Short: "Email a password reset code",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswordForgot,
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new password with a reset code",
	RunE:  runPasswordReset,
}

// Flags
var (
	authEmail    string
	authPassword string

	signupNom      string
	signupPrenom   string
	signupUsername string
	signupType     string
	signupGenres   string
	signupTalents  string
	signupStudio   string

	resetCode        string
	resetNewPassword string
)

func init() {
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordForgotCmd)
	passwordCmd.AddCommand(passwordResetCmd)

	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email")
		c.Flags().StringVar(&authPassword, "password", "", "Account password")
	}

	signupCmd.Flags().StringVar(&signupNom, "nom", "", "First name")
	signupCmd.Flags().StringVar(&signupPrenom, "prenom", "", "Last name")
	signupCmd.Flags().StringVar(&signupUsername, "username", "", "Username")
	signupCmd.Flags().StringVar(&signupType, "type", models.UserTypeArtist, "Account type: artist or producer")
	signupCmd.Flags().StringVar(&signupGenres, "genres", "", "Comma-separated genres (artists)")
	signupCmd.Flags().StringVar(&signupTalents, "talents", "", "Comma-separated talents (artists)")
	signupCmd.Flags().StringVar(&signupStudio, "studio", "", "Studio name (producers)")

	passwordResetCmd.Flags().StringVar(&authEmail, "email", "", "Account email")
	passwordResetCmd.Flags().StringVar(&resetCode, "code", "", "Code from the reset email")
	passwordResetCmd.Flags().StringVar(&resetNewPassword, "new-password", "", "New password")
}

func runSignup(cmd *cobra.Command, args []string) error {
	req := models.SignupRequest{
		Email:    authEmail,
		Nom:      signupNom,
		Prenom:   signupPrenom,
		Username: signupUsername,
		Password: authPassword,
		UserType: signupType,
		Genres:   models.SplitList(signupGenres),
		Talents:  models.SplitList(signupTalents),
	}
	if signupStudio != "" {
		req.StudioName = &signupStudio
	}

	if err := globalClient.Signup(cmd.Context(), req); err != nil {
		return userError(err)
	}
	fmt.Printf("Account %s created. Run 'backstage login' to sign in.\n", signupUsername)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	resp, err := globalClient.Login(cmd.Context(), models.LoginRequest{Email: authEmail, Password: authPassword})
	if err != nil {
		return userError(err)
	}
	fmt.Printf("Logged in as %s\n", resp.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	globalClient.Logout(cmd.Context())
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	sess := globalSession.Session()
	if !sess.Authenticated() {
		fmt.Println("Not logged in.")
		return nil
	}

	fmt.Printf("Username: %s\n", sess.Username)
	if sess.User != nil {
		if sess.User.UserType != "" {
			fmt.Printf("Type:     %s\n", sess.User.UserType)
		}
		if sess.User.ProfilePicture != "" {
			fmt.Printf("Picture:  %s\n", sess.User.ProfilePicture)
		}
	}
	if exp, ok := globalSession.TokenExpiry(); ok {
		state := "valid"
		if time.Now().After(exp) {
			state = "expired"
		}
		fmt.Printf("Token:    %s until %s\n", state, exp.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Backend:  %s\n", globalClient.Origin())
	return nil
}

func runPasswordForgot(cmd *cobra.Command, args []string) error {
	if err := globalClient.ForgotPassword(cmd.Context(), args[0]); err != nil {
		return userError(err)
	}
	fmt.Printf("Reset code sent to %s\n", args[0])
	return nil
}

func runPasswordReset(cmd *cobra.Command, args []string) error {
	req := models.ResetPasswordRequest{Email: authEmail, Code: resetCode, NewPassword: resetNewPassword}
	if err := globalClient.ResetPassword(cmd.Context(), req); err != nil {
		return userError(err)
	}
	fmt.Println("Password updated. Run 'backstage login' to sign in.")
	return nil
}
