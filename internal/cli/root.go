// Package cli implements the spark command line.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tOgg1/spark/internal/config"
	"github.com/tOgg1/spark/internal/logging"
)

// ExitError carries a process exit code. Printed is set when the command
// already reported the failure.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exit codes.
const (
	ExitCodeFailure = 1
	ExitCodeUsage   = 2
)

func usageError(cmd *cobra.Command, format string, args ...any) error {
	return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("%s: %s", cmd.CommandPath(), fmt.Sprintf(format, args...))}
}

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	a := newApp()

	cmd := &cobra.Command{
		Use:           "spark",
		Short:         "Direct messages between matched users",
		Long:          "spark shows a conversation feed with live updates, history paging and optimistic sends.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ~/.config/spark/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("user", "", "act as this user id")
	flags.String("db", "", "database file path")
	flags.String("realtime", "", "realtime backend (memory, redis)")

	v := a.loader.Viper()
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("identity.user_id", flags.Lookup("user"))
	_ = v.BindPFlag("database.path", flags.Lookup("db"))
	_ = v.BindPFlag("realtime.backend", flags.Lookup("realtime"))

	cmd.AddCommand(
		newChatCmd(a),
		newHistoryCmd(a),
		newSendCmd(a),
		newAttachCmd(a),
		newTailCmd(a),
		newUseCmd(a),
		newPushTokenCmd(a),
	)

	return cmd
}

// setup loads configuration and sets up logging. The chat view owns the
// terminal, so it always logs to a file.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configFile != "" {
		a.loader.SetConfigFile(a.configFile)
	}
	cfg, err := a.loader.Load()
	if err != nil {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cmd.Name() == chatCommandName || cfg.Logging.File != "" {
		closer, err := logging.InitFile(logCfg, cfg.LogFilePath())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closer.Close)
	} else {
		logging.Init(logCfg)
	}

	if used := a.loader.ConfigFileUsed(); used != "" {
		logging.Logger.Debug().Str("file", used).Msg("config loaded")
	}
	return nil
}

// close releases everything the command opened, newest first.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// contextStore keeps context.yaml next to the config file.
func contextStore(cfg *config.Config) *config.ContextStore {
	if cfg.Global.ConfigDir == "" {
		return config.NewContextStore("")
	}
	return config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
}
