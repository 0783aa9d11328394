package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/display"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [api-key]",
		Short: "Store the provider API key",
		Long:  "Saves the xAI API key to ~/.slashbot/credentials. Environment keys (GROK_API_KEY, XAI_API_KEY) take precedence when set.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				entered, err := display.PromptAPIKey()
				if err != nil {
					return fmt.Errorf("read API key: %w", err)
				}
				key = entered
			}
			if key == "" {
				return fmt.Errorf("no API key provided")
			}
			if err := saveAPIKey(key); err != nil {
				return err
			}
			fmt.Println("API key saved.")
			return nil
		},
	}
}

func saveAPIKey(key string) error {
	path := credentialsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(key+"\n"), 0o600)
}

func removeAPIKey() error {
	err := os.Remove(credentialsPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
