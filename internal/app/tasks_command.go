package app

import (
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/httpx"
	"github.com/kbizikav/gasless-gas-station/internal/relay"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newTasksCommand() *cobra.Command {
	root := &cobra.Command{Use: "tasks", Short: "Stored task records"}

	var stateFilter string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore()
			if err != nil {
				return err
			}
			records, err := store.List(stateFilter, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records)
		},
	}
	list.Flags().StringVar(&stateFilter, "state", "", "Filter by state (pending|confirmed|failed|expired)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")

	var taskID string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show a stored task, re-checking live status when still pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.showTaskStatus(cmd, taskID)
		},
	}
	status.Flags().StringVar(&taskID, "task", "", "Task id (tx hash or relay task id)")
	_ = status.MarkFlagRequired("task")

	root.AddCommand(list)
	root.AddCommand(status)
	return root
}

// showTaskStatus loads the stored record and, when it has not reached a
// terminal state, performs one live status query and persists what it saw.
// Live lookup failures degrade to the stored snapshot with a warning.
func (s *runtimeState) showTaskStatus(cmd *cobra.Command, taskID string) error {
	store, err := s.openStore()
	if err != nil {
		return err
	}
	record, err := store.Get(taskID)
	if err != nil {
		return err
	}

	if !execution.TaskState(record.State).Terminal() {
		ctx, cancel := s.commandContext()
		defer cancel()

		handle := execution.Handle{Kind: execution.TaskKind(record.Kind), ID: record.TaskID}
		var query execution.StatusFunc
		switch handle.Kind {
		case execution.KindRelayTask:
			relayClient := relay.New(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.RelayAPIKey)
			query = relayClient.StatusQuery(handle)
		case execution.KindTransaction:
			client, dialErr := s.dialChain(ctx)
			if dialErr == nil {
				defer client.Close()
				query = execution.ReceiptStatus(client.Eth(), handle)
			} else {
				s.warnings = append(s.warnings, "live status unavailable: "+dialErr.Error())
			}
		}
		if query != nil {
			if status, queryErr := query(ctx); queryErr == nil {
				record.Apply(status)
				s.saveTask(record)
			} else {
				s.warnings = append(s.warnings, "live status check failed: "+queryErr.Error())
			}
		}
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), record)
}
