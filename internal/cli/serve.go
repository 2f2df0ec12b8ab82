package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codemcp/internal/appstate"
	"codemcp/internal/coder"
	"codemcp/internal/config"
	"codemcp/internal/events"
	"codemcp/internal/mcp"
	"codemcp/internal/mistral"
	"codemcp/internal/model"
)

type serveOptions struct {
	transport     string
	listen        string
	mcpPath       string
	model         string
	noProbe       bool
	statsInterval time.Duration
}

func (a *app) newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve code tasks over MCP (stdio or streamable HTTP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", config.TransportStdio, "transport: stdio|http")
	cmd.Flags().StringVar(&opts.listen, "listen", config.DefaultListen, "host:port for the http transport")
	cmd.Flags().StringVar(&opts.mcpPath, "mcp-path", config.DefaultMCPPath, "HTTP path for the MCP endpoint")
	cmd.Flags().StringVar(&opts.model, "model", "", "chat and FIM model (default from config)")
	cmd.Flags().BoolVar(&opts.noProbe, "no-probe", false, "skip the startup credential check")
	cmd.Flags().DurationVar(&opts.statsInterval, "stats-interval", 5*time.Minute, "how often to log request counters (0 disables)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := a.loadConfig(cmd, &config.Overrides{
		Transport: stringFlag(cmd, "transport", &opts.transport),
		Listen:    stringFlag(cmd, "listen", &opts.listen),
		MCPPath:   stringFlag(cmd, "mcp-path", &opts.mcpPath),
		Model:     stringFlag(cmd, "model", &opts.model),
	}, false)
	if err != nil {
		return err
	}
	emitter := events.New(cfg.Log.Format, a.stderr, cfg.Log.Verbose)

	client, err := newClient(cfg, emitter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.noProbe {
		if err := probe(ctx, client, emitter); err != nil {
			return err
		}
	}

	stats := appstate.NewStats()
	service := coder.New(client, coder.WithStats(stats), coder.WithEmitter(emitter))
	server := mcp.NewServer(*cfg, service,
		mcp.WithStats(stats),
		mcp.WithEventEmitter(emitter),
		mcp.WithModelLister(client),
		mcp.WithVersion(Version),
	)

	var serve func(context.Context) error
	switch cfg.Server.Transport {
	case config.TransportHTTP:
		listener, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			return exitWith(ExitBindFailure, err)
		}
		if cfg.Log.Format != config.LogFormatJSON {
			a.printEndpoint(cfg, listener.Addr().String())
		}
		serve = func(ctx context.Context) error { return server.Serve(ctx, listener) }
	default:
		serve = func(ctx context.Context) error { return server.ServeStdio(ctx, a.stdin, a.stdout) }
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return serve(gctx)
	})
	g.Go(func() error {
		reportStats(gctx, stats, emitter, opts.statsInterval)
		return nil
	})
	return g.Wait()
}

func (a *app) printEndpoint(cfg *config.Config, addr string) {
	st := newStyles(a.stderr, false)
	auth := "none"
	if cfg.Server.AuthToken != "" {
		auth = "Bearer token"
	}
	lines := []string{
		st.banner() + " " + st.dim(Version),
		st.kv("MCP URL", st.url("http://"+addr+cfg.Server.MCPPath)),
		st.kv("Auth", auth),
		st.kv("Model", cfg.Mistral.Model),
		"",
	}
	for _, line := range lines {
		_, _ = a.stderr.Write([]byte(line + "\n"))
	}
}

// newClient builds the single Mistral client owned by this process.
func newClient(cfg *config.Config, emitter events.Emitter) (*mistral.Client, error) {
	client, err := cfg.NewClient()
	if err != nil {
		return nil, exitWith(ExitConfigInvalid, err)
	}
	client.OnResponse = func(endpoint string, statusCode int, body []byte) {
		emitter.Emit(events.LevelDebug, "mistral_response", map[string]interface{}{
			"endpoint": endpoint,
			"status":   statusCode,
			"bytes":    len(body),
		})
	}
	return client, nil
}

// probe checks the credential with one GET /models. A rejected key exits
// with ExitAuthFailed.
func probe(ctx context.Context, client *mistral.Client, emitter events.Emitter) error {
	err := client.ValidateCredential(ctx)
	if err == nil {
		emitter.Emit(events.LevelInfo, "credential_ok", nil)
		return nil
	}
	emitter.Emit(events.LevelError, "credential_check_failed", map[string]interface{}{
		"code":    string(model.KindOf(err)),
		"message": err.Error(),
	})
	if model.IsKind(err, model.KindAuth) {
		return exitWith(ExitAuthFailed, err)
	}
	return exitWith(ExitGenericError, err)
}

func reportStats(ctx context.Context, stats *appstate.Stats, emitter events.Emitter, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := stats.Snapshot()
			emitter.Emit(events.LevelInfo, "stats", map[string]interface{}{
				"requests":          snap.Requests,
				"in_flight":         snap.InFlight,
				"succeeded":         snap.Succeeded,
				"failed":            snap.Failed,
				"prompt_tokens":     snap.PromptTokens,
				"completion_tokens": snap.CompletionTokens,
			})
		}
	}
}
