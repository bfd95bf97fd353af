// ABOUTME: Cobra command for interactive backend setup and login.
// ABOUTME: Launches a bubbletea TUI wizard and saves the chosen origin on success.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/backstage/internal/config"
	"github.com/2389-research/backstage/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose a backend and log in",
	Long:  "Interactive wizard that logs in to a backend and saves its origin to the config file.",
	RunE:  runSetup,
}

var setupEmail string

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVar(&setupEmail, "email", "", "Pre-fill the email step")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	model := tui.NewSetupModel(
		cfg.Backend.Origin,
		setupEmail,
		tui.NewLoginFn(globalSession, clientOptions(cfg, globalLogger)...),
	)

	p := tea.NewProgram(model)
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Println("Setup cancelled.")
		return nil
	}

	origin, _ := final.Result()
	saved, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	saved.Backend.Origin = origin

	if err := saved.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		fmt.Printf("Logged in as %s. Config saved.\n", final.Username())
	} else {
		fmt.Printf("Logged in as %s. Config saved to %s\n", final.Username(), configPath)
	}
	return nil
}
