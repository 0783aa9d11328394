package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/paths"
	"github.com/slashbot/slashbot/internal/scheduler"
)

// taskCmd manages scheduled tasks from outside a running session. Tasks
// fire only while `slashbot` is running.
func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(taskListCmd(), taskAddCmd(), taskRmCmd())
	return cmd
}

// taskStore opens the persisted task file without runners; management
// operations never execute task bodies.
func taskStore() *scheduler.Scheduler {
	return scheduler.New(paths.TasksFile(), nil, nil)
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := taskStore().List()
			if len(tasks) == 0 {
				fmt.Println("no scheduled tasks")
				return nil
			}
			for _, t := range tasks {
				state := "on"
				if !t.Enabled {
					state = "off"
				}
				last := "never"
				if t.LastRunAt != nil {
					last = t.LastRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s  %-12s %-16s kind=%-6s [%s] last=%s\n", t.ID, t.Name, t.Cron, t.BodyKind, state, last)
			}
			return nil
		},
	}
}

func taskAddCmd() *cobra.Command {
	var cron string
	var prompt bool

	cmd := &cobra.Command{
		Use:   "add <name> <body...>",
		Short: "Add a scheduled task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := taskStore().Add(cron, args[0], strings.Join(args[1:], " "), prompt)
			if err != nil {
				return err
			}
			fmt.Printf("scheduled %s (%s)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression, e.g. \"0 9 * * 1-5\"")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "run the body as an agent prompt instead of a shell command")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func taskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !taskStore().Remove(args[0]) {
				return fmt.Errorf("no task with id %s", args[0])
			}
			fmt.Println("removed", args[0])
			return nil
		},
	}
}
