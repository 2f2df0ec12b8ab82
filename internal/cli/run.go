package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"codemcp/internal/coder"
	"codemcp/internal/config"
	"codemcp/internal/events"
	"codemcp/internal/model"
)

type runOptions struct {
	task      string
	language  string
	suffix    string
	file      string
	model     string
	mamba     bool
	fim       bool
	maxTokens int
}

func (a *app) newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Run one code task and print the resulting code",
		Example: "  codemcp run --task fix --lang python broken.py\n" +
			"  cat snippet.go | codemcp run --task test --lang go -\n" +
			"  codemcp run --fim --suffix 'return b' head.py",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if opts.file != "" {
					return exitWith(ExitGenericError, fmt.Errorf("pass the input either as an argument or with --file, not both"))
				}
				opts.file = args[0]
			}
			return a.runTask(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.task, "task", string(model.TaskComplete), "task: complete|fix|test|fill_in_middle")
	cmd.Flags().StringVar(&opts.language, "lang", "", "language tag for the code fence")
	cmd.Flags().StringVar(&opts.suffix, "suffix", "", "required ending for fill_in_middle and --fim")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read code from file (- for stdin)")
	cmd.Flags().StringVar(&opts.model, "model", "", "override the chat model")
	cmd.Flags().BoolVar(&opts.mamba, "mamba", false, "use the configured mamba model")
	cmd.Flags().BoolVar(&opts.fim, "fim", false, "use the native fill-in-the-middle endpoint")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "token limit for --fim (default 1000)")
	return cmd
}

func (a *app) runTask(cmd *cobra.Command, opts *runOptions) error {
	if opts.mamba && opts.fim {
		return exitWith(ExitGenericError, fmt.Errorf("--mamba and --fim cannot be combined"))
	}
	kind, err := model.ParseTaskKind(opts.task)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig(cmd, &config.Overrides{Model: stringFlag(cmd, "model", &opts.model)}, false)
	if err != nil {
		return err
	}
	emitter := events.New(cfg.Log.Format, a.stderr, cfg.Log.Verbose)

	code, err := a.readInput(opts.file)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, emitter)
	if err != nil {
		return err
	}
	service := coder.New(client, coder.WithEmitter(emitter))

	label := string(kind)
	call := func(ctx context.Context) (coder.Result, error) {
		if opts.fim {
			return service.Infill(ctx, coder.Infill{Prompt: code, Suffix: opts.suffix, MaxTokens: opts.maxTokens})
		}
		task := coder.Task{Kind: kind, Code: code, Language: opts.language, Suffix: opts.suffix}
		if opts.mamba {
			task.Model = cfg.Mistral.MambaModel
		}
		return service.Run(ctx, task)
	}
	if opts.fim {
		label = "infill"
	}

	var res coder.Result
	if isTerminal(a.stdin) && isTerminal(a.stderr) && cfg.Log.Format != config.LogFormatJSON {
		res, err = runWithProgress(cmd.Context(), a.stderr, label, call)
	} else {
		res, err = call(cmd.Context())
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, res.Text)
	if cfg.Log.Verbose {
		st := newStyles(a.stderr, cfg.Log.Format == config.LogFormatJSON)
		fmt.Fprintln(a.stderr, st.dim(fmt.Sprintf("%s  model=%s prompt_tokens=%d completion_tokens=%d %s",
			label, res.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Duration.Round(time.Millisecond))))
	}
	return nil
}

// readInput returns the code to work on: the named file, or stdin for "" and
// "-". An interactive stdin with no file is rejected rather than waited on.
func (a *app) readInput(path string) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", exitWith(ExitGenericError, fmt.Errorf("reading %s: %w", path, err))
		}
		return string(data), nil
	}
	if path == "" && isTerminal(a.stdin) {
		return "", exitWith(ExitGenericError, fmt.Errorf("no input: pass a file or pipe code on stdin"))
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", exitWith(ExitGenericError, fmt.Errorf("reading stdin: %w", err))
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", model.NewError(model.KindInvalidRequest, "input is empty")
	}
	return string(data), nil
}
