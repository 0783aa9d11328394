package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const releasesURL = "https://api.github.com/repos/slashbot/slashbot/releases/latest"

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update slashbot to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, err := latestVersion()
			if err != nil {
				return err
			}
			fmt.Printf("  Current: %s\n", Version)
			fmt.Printf("  Latest:  %s\n", latest)
			if latest == Version {
				fmt.Println("  Already up to date.")
				return nil
			}
			fmt.Println()
			fmt.Println("  Install the latest release with:")
			fmt.Printf("    go install github.com/slashbot/slashbot@%s\n", latest)
			return nil
		},
	}
}

func updateCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-check",
		Short: "Check whether a newer release is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, err := latestVersion()
			if err != nil {
				return err
			}
			if latest == Version {
				fmt.Printf("slashbot %s is up to date\n", Version)
			} else {
				fmt.Printf("slashbot %s available (running %s)\n", latest, Version)
			}
			return nil
		},
	}
}

// latestVersion asks the GitHub releases API for the newest tag.
func latestVersion() (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(releasesURL)
	if err != nil {
		return "", fmt.Errorf("check releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("check releases: HTTP %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("decode release: %w", err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("no releases published")
	}
	return release.TagName, nil
}
