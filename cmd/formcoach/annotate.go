package main

import (
	"FormCoach/pkg/video"
	"FormCoach/pkg/video/cv"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <input.mp4> <output.mp4>",
	Short: "Burn elapsed-time labels into every frame of a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		annotator := video.NewAnnotator(cv.New(logger), cfg.Video, logger)

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Labeling frames"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		annotator.OnFrame = func(int, string) { _ = bar.Add(1) }

		res, err := annotator.Annotate(cmd.Context(), args[0], args[1])
		_ = bar.Finish()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d frames %dx%d @ %.2f fps, %s to %s, written to %s\n",
			res.Frames, res.Props.Width, res.Props.Height, res.Props.FPS, res.FirstLabel, res.LastLabel, res.OutputPath)
		return nil
	},
}
