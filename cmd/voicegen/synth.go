package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"voicegen/internal/pkg/voicegen/refstore"
	"voicegen/internal/pkg/voicegen/registry"
	"voicegen/internal/pkg/voicegen/synth"
)

func synthCmd(c *cli) *cobra.Command {
	var (
		text      string
		textFile  string
		model     string
		language  string
		reference string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "synth [text]",
		Short: "Synthesize text into an audio file",
		Long: `Synthesize text with the selected voice model.

Bark models accept inline tags such as [laughter] (see "voicegen tags").
XTTS models clone the voice of a reference clip (--reference).
The output format follows the file extension; ".mp3" is used when none is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readText(text, textFile, args)
			if err != nil {
				return err
			}

			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()

			if language == "" {
				language = c.cfg.Language
			}
			if model == "" {
				models := a.Catalog.Models(language)
				if len(models) == 0 {
					model = a.Catalog.DefaultModel()
				} else {
					model = models[0]
				}
				log.Info().Str("model", model).Msg("Auto-selected model")
			}

			var clip *refstore.Clip
			if reference != "" {
				selected, err := a.Clips.Select(reference)
				if err != nil {
					return err
				}
				clip = &selected
			}

			log.Info().
				Str("text", truncateText(input, 50)).
				Str("backend", registry.Classify(model).String()).
				Msg("Generating speech...")

			res, err := a.Dispatcher.Synthesize(cmd.Context(), synth.Request{
				Text:       input,
				ModelID:    model,
				Reference:  clip,
				Language:   language,
				OutputPath: output,
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("output", res.OutputPath).
				Str("device", string(res.Device)).
				Dur("elapsed", res.Elapsed).
				Msg("Audio saved successfully")
			fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to synthesize (use '-' to read from stdin)")
	cmd.Flags().StringVarP(&textFile, "file", "f", "", "Read text from file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Voice model id (default: first model for the language)")
	cmd.Flags().StringVarP(&language, "language", "L", "", "Language selection, e.g. Español, Inglés, Francés")
	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference clip name for voice cloning")
	cmd.Flags().StringVarP(&output, "output", "o", "output.mp3", "Output file")
	return cmd
}

func readText(text, textFile string, args []string) (string, error) {
	switch {
	case textFile != "":
		content, err := os.ReadFile(textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	case text == "-":
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	case text != "":
		return text, nil
	default:
		return strings.Join(args, " "), nil
	}
}
