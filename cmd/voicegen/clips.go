package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"voicegen/internal/pkg/voicegen/refstore"
)

func clipsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Manage reference clips used for voice cloning",
	}
	cmd.AddCommand(
		clipsListCmd(c),
		clipsImportCmd(c),
		clipsSelectCmd(c),
		clipsWatchCmd(c),
	)
	return cmd
}

func (c *cli) store() (*refstore.Store, error) {
	return refstore.Open(c.cfg.ClipsDir)
}

func printClips(w io.Writer, clips []refstore.Clip) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tSAMPLE RATE\tCREATED\n")
	for _, clip := range clips {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", clip.Name, clip.SampleRate, clip.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func clipsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved reference clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			clips, err := s.List()
			if err != nil {
				return err
			}
			return printClips(cmd.OutOrStdout(), clips)
		},
	}
}

func clipsImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <wav> [name]",
		Short: "Copy an existing WAV recording into the clip directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			clip, err := s.Import(args[0], name)
			if err != nil {
				return err
			}
			log.Info().Str("clip", clip.Name).Int("sample_rate", clip.SampleRate).Msg("Reference clip saved")
			fmt.Fprintln(cmd.OutOrStdout(), clip.Path)
			return nil
		},
	}
}

func clipsSelectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "select <name>",
		Short: "Print the path of a saved clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			clip, err := s.Select(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), clip.Path)
			return nil
		},
	}
}

func clipsWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the clip listing whenever the clip directory changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			refresh := func() {
				clips, err := s.List()
				if err != nil {
					log.Warn().Err(err).Msg("Failed to list clips")
					return
				}
				printClips(cmd.OutOrStdout(), clips)
			}
			refresh()
			log.Info().Str("dir", s.Dir()).Msg("Watching clip directory, press Ctrl+C to stop")
			return s.Watch(cmd.Context(), refresh)
		},
	}
}
