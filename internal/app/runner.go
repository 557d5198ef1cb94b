package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kbizikav/gasless-gas-station/internal/config"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/model"
	"github.com/kbizikav/gasless-gas-station/internal/out"
	"github.com/kbizikav/gasless-gas-station/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	rpcURL      string
	chainID     int64
	settings    config.Settings
	warnings    []string
	root        *cobra.Command
	lastCommand string
	store       *execution.Store
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.closeStore()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Gasless ERC-20 swap orchestration CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, warnings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			if s.rpcURL != "" {
				settings.RPCURL = s.rpcURL
			}
			if s.chainID != 0 {
				settings.ChainID = s.chainID
			}
			s.settings = settings
			s.warnings = warnings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})
	// Accept underscore spellings for every flag.
	cmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Per-request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per idempotent request")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.rpcURL, "rpc-url", "", "RPC endpoint override")
	cmd.PersistentFlags().Int64Var(&s.chainID, "chain-id", 0, "Chain id override")

	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newApprovalsCommand())
	cmd.AddCommand(s.newTasksCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}

func (s *runtimeState) openStore() (*execution.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := execution.OpenStore(s.settings.TaskStorePath, s.settings.TaskLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open task store", err)
	}
	s.store = store
	return store, nil
}

func (s *runtimeState) closeStore() {
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
}

// saveTask persists a task record; store failures become warnings rather than
// masking the swap outcome.
func (s *runtimeState) saveTask(record execution.TaskRecord) {
	store, err := s.openStore()
	if err != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("task store unavailable: %v", err))
		return
	}
	if err := store.Save(record); err != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("persist task %s failed: %v", record.TaskID, err))
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings.OutputMode)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		switch cErr.Code {
		case clierr.CodeUsage:
			typ = "usage_error"
		case clierr.CodeAuth:
			typ = "auth_error"
		case clierr.CodeRateLimited:
			typ = "rate_limited"
		case clierr.CodeUnavailable:
			typ = "unavailable"
		case clierr.CodeUnsupported:
			typ = "unsupported"
		case clierr.CodeSigner:
			typ = "signer_error"
		case clierr.CodeDeadline:
			typ = "deadline_expired"
		case clierr.CodeFeeBound:
			typ = "fee_exceeds_bound"
		case clierr.CodeTimeout:
			typ = "status_expired"
		case clierr.CodeReverted:
			typ = "execution_reverted"
		}
	}

	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, mode)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
