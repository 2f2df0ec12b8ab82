package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"codemcp/internal/config"
	"codemcp/internal/model"
)

const (
	ExitSuccess       = 0
	ExitGenericError  = 1
	ExitConfigInvalid = 2
	ExitAuthFailed    = 3
	ExitBindFailure   = 4
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	ConfigPath string
	LogFormat  string
	Verbose    bool
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	flags  GlobalFlags
}

// NewRootCmd builds the command tree bound to the given streams.
func NewRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "codemcp",
		Short:         "Codestral code tasks as an MCP tool server",
		Long:          "codemcp completes, fixes, tests and fills in code with Mistral's Codestral models and serves those tasks to coding agents over MCP.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.flags.ConfigPath, "config", "", "config file path (default: <user config dir>/codemcp/config.toml)")
	root.PersistentFlags().StringVar(&a.flags.LogFormat, "log-format", config.LogFormatText, "log format on stderr: text|json")
	root.PersistentFlags().BoolVarP(&a.flags.Verbose, "verbose", "v", false, "log debug events, including raw API responses")

	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newCheckCmd())
	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newConfigCmd())
	root.AddCommand(a.newVersionCmd())
	return root
}

// Execute runs the CLI against the process streams and returns the exit
// code.
func Execute() int {
	return run(NewRootCmd(os.Stdin, os.Stdout, os.Stderr), os.Stderr)
}

func run(root *cobra.Command, stderr io.Writer) int {
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	st := newStyles(stderr, false)
	fmt.Fprintln(stderr, st.errPrefix(), err.Error())
	return exitCode(err)
}

// exitCode maps an error to a process exit code. Errors without an explicit
// code are classified by their provider error kind.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch model.KindOf(err) {
	case model.KindConfig:
		return ExitConfigInvalid
	case model.KindAuth:
		return ExitAuthFailed
	default:
		return ExitGenericError
	}
}

// loadConfig applies the global flags on top of the command's own
// overrides.
func (a *app) loadConfig(cmd *cobra.Command, o *config.Overrides, skipValidate bool) (*config.Config, error) {
	return a.loadConfigFrom(cmd, a.flags.ConfigPath, o, skipValidate)
}

func (a *app) loadConfigFrom(cmd *cobra.Command, path string, o *config.Overrides, skipValidate bool) (*config.Config, error) {
	if o == nil {
		o = &config.Overrides{}
	}
	if cmd.Flags().Changed("log-format") {
		o.LogFormat = &a.flags.LogFormat
	}
	if cmd.Flags().Changed("verbose") {
		o.Verbose = &a.flags.Verbose
	}
	cfg, err := config.Load(config.Options{
		ConfigPath:   path,
		SkipValidate: skipValidate,
		Overrides:    o,
	})
	if err != nil {
		return nil, exitWith(ExitConfigInvalid, err)
	}
	return cfg, nil
}

func stringFlag(cmd *cobra.Command, name string, value *string) *string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}
