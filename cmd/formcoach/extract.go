package main

import (
	"FormCoach/pkg/video"
	"FormCoach/pkg/video/cv"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errNoFrame = errors.New("no frame at timestamp")

var extractOutput string

var extractCmd = &cobra.Command{
	Use:   "extract <mm:ss.mmm> <video.mp4>",
	Short: "Extract the frame at a timestamp as JPEG",
	Long: "Extract the frame at a timestamp. With -o the JPEG is written to a file,\n" +
		"otherwise its base64 encoding is printed.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		extractor := video.NewExtractor(cv.New(logger), cfg.Video, logger)

		still, ok, err := extractor.ExtractStill(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w %s in %s", errNoFrame, args[0], args[1])
		}

		if extractOutput == "" {
			fmt.Fprintln(cmd.OutOrStdout(), still.Base64())
			return nil
		}
		if err := os.WriteFile(extractOutput, still.JPEG, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", extractOutput, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%dx%d still at %s (quality %d) written to %s\n",
			still.Width, still.Height, video.FormatOffset(still.OffsetMs), still.Quality, extractOutput)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write the JPEG to this file")
}
