package cmd

import (
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/paths"
	"github.com/slashbot/slashbot/internal/transcript"
	"github.com/slashbot/slashbot/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("slashbot doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
	fmt.Printf("  Go:       %s\n", goruntime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Provider:")
	key := cfg.Provider.APIKey
	if key == "" {
		key = savedAPIKey()
	}
	checkAPIKey("xAI", key)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Model)

	fmt.Println()
	fmt.Println("  Connectors:")
	checkConnector("Telegram", cfg.Connectors.Telegram)
	checkConnector("Discord", cfg.Connectors.Discord)

	fmt.Println()
	fmt.Println("  State:")
	if dir, err := paths.LocksDir(); err != nil {
		fmt.Printf("    %-12s UNAVAILABLE (%s)\n", "Locks:", err)
	} else {
		fmt.Printf("    %-12s %s\n", "Locks:", dir)
	}
	checkTranscript()

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("git")
	checkBinary("curl")
	checkBinary("rg")

	fmt.Println()
	ws := cfg.Agent.Workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkAPIKey(name, apiKey string) {
	if len(apiKey) > 8 {
		masked := apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
		fmt.Printf("    %-12s %s\n", name+":", masked)
	} else if apiKey != "" {
		fmt.Printf("    %-12s (set)\n", name+":")
	} else {
		fmt.Printf("    %-12s (not configured — run: slashbot login)\n", name+":")
	}
}

func checkConnector(name string, c config.ConnectorConfig) {
	status := "disabled"
	if c.Enabled && c.Token != "" {
		status = "enabled"
	} else if c.Enabled {
		status = "enabled (missing token)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func checkTranscript() {
	store, err := transcript.Open(paths.TranscriptDB())
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Transcript:", err)
		return
	}
	defer store.Close()
	entries, err := store.Recent("", 1)
	if err != nil {
		fmt.Printf("    %-12s QUERY FAILED (%s)\n", "Transcript:", err)
		return
	}
	if len(entries) == 0 {
		fmt.Printf("    %-12s %s (empty)\n", "Transcript:", paths.TranscriptDB())
		return
	}
	fmt.Printf("    %-12s %s (last message %s)\n", "Transcript:", paths.TranscriptDB(),
		entries[0].Time.Format("2006-01-02 15:04"))
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
