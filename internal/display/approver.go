package display

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/huh"
)

// ConsoleApprover gates approval-required tools with an interactive
// confirm. Non-interactive sessions (connector-only serve) should not
// bind it; the kernel then denies by default.
type ConsoleApprover struct{}

func (ConsoleApprover) Approve(ctx context.Context, prompt string) bool {
	if ctx.Err() != nil {
		return false
	}
	var approved bool
	confirm := huh.NewConfirm().
		Title(prompt).
		Affirmative("Allow").
		Negative("Deny").
		Value(&approved)
	if err := confirm.Run(); err != nil {
		slog.Warn("approval prompt failed, denying", "error", err)
		return false
	}
	return approved
}

// PromptAPIKey asks for a provider API key with masked input. Used by
// the login command when no key is given on the command line.
func PromptAPIKey() (string, error) {
	var key string
	input := huh.NewInput().
		Title("xAI API key").
		Description("Stored in ~/.slashbot/credentials, never in the config file.").
		EchoMode(huh.EchoModePassword).
		Value(&key)
	if err := input.Run(); err != nil {
		return "", err
	}
	return key, nil
}
