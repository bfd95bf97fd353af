// ABOUTME: CLI commands for viewing and editing user profiles.
// ABOUTME: Provides profile show and edit subcommands with picture upload.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/models"
)

var profileCmd = &cobra.Command{
	Use:   "profile [username]",
	Short: "Show a profile",
	Long:  "Show a user's profile. Defaults to the logged-in user.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfile,
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit your profile",
	Long:  "Update your name, bio, or picture. Fields without a flag keep their current value.",
	RunE:  runProfileEdit,
}

// Flags
var (
	profileRefresh bool
	editNom        string
	editPrenom     string
	editBio        string
	editPicture    string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileEditCmd)

	profileCmd.Flags().BoolVar(&profileRefresh, "refresh", false, "Bypass the cache")

	profileEditCmd.Flags().StringVar(&editNom, "nom", "", "First name")
	profileEditCmd.Flags().StringVar(&editPrenom, "prenom", "", "Last name")
	profileEditCmd.Flags().StringVar(&editBio, "bio", "", "Bio")
	profileEditCmd.Flags().StringVar(&editPicture, "picture", "", "Path to a new profile picture")
}

func runProfile(cmd *cobra.Command, args []string) error {
	username := globalSession.Session().Username
	if len(args) == 1 {
		username = args[0]
	}
	if username == "" {
		return fmt.Errorf("not logged in - pass a username or run 'backstage login' first")
	}

	get := globalClient.GetUserProfile
	if profileRefresh {
		get = globalClient.RefetchUserProfile
	}
	p, err := get(cmd.Context(), username)
	if err != nil {
		return userError(err)
	}

	fmt.Printf("@%s", p.Username)
	if name := p.DisplayName(); name != "" {
		fmt.Printf("  %s", name)
	}
	if p.UserType != "" {
		fmt.Printf("  [%s]", p.UserType)
	}
	fmt.Println()
	if p.Bio != "" {
		fmt.Printf("%s\n", p.Bio)
	}
	if p.Location != "" {
		fmt.Printf("Location:  %s\n", p.Location)
	}
	fmt.Printf("Followers: %d  Following: %d  Likes: %d\n", p.Followers, p.Following, p.Likes)
	fmt.Printf("Picture:   %s\n", p.ProfilePicture)
	if len(p.Posts) > 0 {
		fmt.Printf("\nPosts (%d):\n", len(p.Posts))
		for _, post := range p.Posts {
			fmt.Printf("  #%d %s\n", post.ID, post.Image)
		}
	}
	return nil
}

func runProfileEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	username := globalSession.Session().Username
	if username == "" {
		return fmt.Errorf("not logged in - run 'backstage login' first")
	}

	current, err := globalClient.GetUserProfile(ctx, username)
	if err != nil {
		return userError(err)
	}

	upd := models.ProfileUpdate{
		Username: current.Username,
		Nom:      current.Nom,
		Prenom:   current.Prenom,
		Bio:      current.Bio,
	}
	flags := cmd.Flags()
	if flags.Changed("nom") {
		upd.Nom = editNom
	}
	if flags.Changed("prenom") {
		upd.Prenom = editPrenom
	}
	if flags.Changed("bio") {
		upd.Bio = editBio
	}
	if editPicture != "" {
		upload, f, err := media.OpenUpload(editPicture)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		upd.ProfilePicture = upload
	}

	if err := globalClient.UpdateProfile(ctx, upd); err != nil {
		return userError(err)
	}
	fmt.Println("Profile updated.")
	return nil
}
