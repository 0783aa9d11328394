// Package paths resolves the user-global and workspace-local slashbot roots.
//
// Layout:
//
//	~/.slashbot/            user-global root
//	  locks/<connector>.lock
//	  history               one line per submitted input, newest last
//	  tasks.json            persisted scheduled tasks
//	  agents/               one JSON file per agent profile
//	  transcript.db         sqlite transcript store
//	./.slashbot/            workspace-local root
//	  context/<date|topic>/*.md
package paths

import (
	"os"
	"path/filepath"
)

const dirName = ".slashbot"

// HomeRoot returns ~/.slashbot, honouring the HOME environment variable.
func HomeRoot() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, dirName)
}

// WorkspaceRoot returns ./.slashbot relative to the current working directory.
func WorkspaceRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return dirName
	}
	return filepath.Join(wd, dirName)
}

// LocksDir returns the cross-process lock directory, creating it on demand.
func LocksDir() (string, error) {
	dir := filepath.Join(HomeRoot(), "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// AgentsDir returns the agent profile directory, creating it on demand.
func AgentsDir() (string, error) {
	dir := filepath.Join(HomeRoot(), "agents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// TasksFile returns the scheduled-task persistence path.
func TasksFile() string {
	return filepath.Join(HomeRoot(), "tasks.json")
}

// HistoryFile returns the input history path.
func HistoryFile() string {
	return filepath.Join(HomeRoot(), "history")
}

// TranscriptDB returns the sqlite transcript store path.
func TranscriptDB() string {
	return filepath.Join(HomeRoot(), "transcript.db")
}

// ContextDir returns the workspace-local context notes directory for a topic.
func ContextDir(topic string) string {
	return filepath.Join(WorkspaceRoot(), "context", topic)
}

// AppendHistory appends one submitted input line to the history file, newest last.
func AppendHistory(line string) error {
	if err := os.MkdirAll(HomeRoot(), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(HistoryFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
