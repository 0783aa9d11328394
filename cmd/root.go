// Package cmd implements the slashbot CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/slashbot/slashbot/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
	oneShot string
)

var rootCmd = &cobra.Command{
	Use:   "slashbot",
	Short: "Slashbot — an agentic LLM runtime for your terminal and chat platforms",
	Long: "Slashbot runs an action-loop agent against a streaming LLM: it reads and edits\n" +
		"files, runs commands, schedules tasks, and answers over the CLI, Telegram, and Discord.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		if oneShot != "" {
			return runOneShot(oneShot)
		}
		return runServe()
	},
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (protocol %d)", Version, protocol.ProtocolVersion)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.slashbot/config.json5)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&oneShot, "message", "m", "", "run one message and exit")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(updateCheckCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slashbot %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("SLASHBOT_CONFIG"); v != "" {
		return v
	}
	return config.Path()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
