package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"codemcp/internal/config"
	"codemcp/internal/events"
)

func (a *app) newCheckCmd() *cobra.Command {
	var listModels bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the API key and show the models it can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd, nil, false)
			if err != nil {
				return err
			}
			emitter := events.New(cfg.Log.Format, a.stderr, cfg.Log.Verbose)
			client, err := newClient(cfg, emitter)
			if err != nil {
				return err
			}
			if err := probe(cmd.Context(), client, emitter); err != nil {
				return err
			}
			cards, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(cards))
			for _, card := range cards {
				ids = append(ids, card.ID)
			}
			sort.Strings(ids)

			st := newStyles(a.stdout, cfg.Log.Format == config.LogFormatJSON)
			fmt.Fprintln(a.stdout, st.banner(), st.ok("credential ok"))
			fmt.Fprintln(a.stdout, st.kv("Base URL", cfg.Mistral.BaseURL))
			fmt.Fprintln(a.stdout, st.kv("Model", cfg.Mistral.Model))
			fmt.Fprintln(a.stdout, st.kv("Mamba", cfg.Mistral.MambaModel))
			fmt.Fprintln(a.stdout, st.kv("Available", fmt.Sprintf("%d models", len(ids))))
			if listModels && len(ids) > 0 {
				fmt.Fprintln(a.stdout, st.dim("  "+strings.Join(ids, "\n  ")))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&listModels, "list", false, "print every model id")
	return cmd
}
