package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voicegen/internal/pkg/voicegen/registry"
)

type modelEntry struct {
	Language string `json:"language"`
	Model    string `json:"model"`
	Backend  string `json:"backend"`
}

func modelsCmd(c *cli) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "models [language]",
		Short: "List the voice models offered per language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := registry.DefaultCatalog()
			if c.cfg.CatalogFile != "" {
				var err error
				if catalog, err = registry.LoadCatalog(c.cfg.CatalogFile); err != nil {
					return err
				}
			}

			labels := catalog.Labels()
			if len(args) == 1 {
				if catalog.Models(args[0]) == nil {
					return fmt.Errorf("unknown language %q (available: %v)", args[0], labels)
				}
				labels = []string{args[0]}
			}

			var entries []modelEntry
			for _, label := range labels {
				for _, id := range catalog.Models(label) {
					entries = append(entries, modelEntry{
						Language: label,
						Model:    id,
						Backend:  registry.Classify(id).String(),
					})
				}
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(entries, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "LANGUAGE\tMODEL\tBACKEND\n")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Language, e.Model, e.Backend)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the inline tags understood by Bark models",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tag := range registry.Tags() {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}
}
