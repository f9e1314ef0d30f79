package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lapse/internal/api"
)

// selectionFlags are shared by every submit subcommand.
type selectionFlags struct {
	selection api.Selection
	submitter api.Submitter
}

func (s *selectionFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&s.selection.DeveloperID, "developer", "", "Developer identifier")
	flags.StringVar(&s.selection.ProjectID, "project", "", "Project identifier")
	flags.StringVar(&s.selection.CameraID, "camera", "", "Camera identifier")
	flags.StringVar(&s.selection.DateFrom, "from", "", "First capture date (YYYY-MM-DD)")
	flags.StringVar(&s.selection.DateTo, "to", "", "Last capture date (YYYY-MM-DD)")
	flags.StringVar(&s.selection.HourFrom, "hour-from", "00", "First capture hour (00-23)")
	flags.StringVar(&s.selection.HourTo, "hour-to", "23", "Last capture hour (00-23)")
	flags.StringVar(&s.submitter.SubmittedBy, "submitted-by", "", "Submitter identifier recorded on the job")
	flags.StringVar(&s.submitter.SubmitterName, "name", "", "Submitter display name recorded on the job")
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a timelapse video or photo archive",
	}
	submitCmd.AddCommand(newSubmitVideoCommand(ctx))
	submitCmd.AddCommand(newSubmitPhotoCommand(ctx))
	return submitCmd
}

func newSubmitVideoCommand(ctx *commandContext) *cobra.Command {
	var sel selectionFlags
	var req api.VideoRequest
	var contrast, brightness, saturation float64

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Queue a timelapse video render",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Selection = sel.selection
			req.Submitter = sel.submitter
			req.Music = req.MusicTrack != ""
			flags := cmd.Flags()
			if flags.Changed("contrast") {
				req.Contrast = &contrast
			}
			if flags.Changed("brightness") {
				req.Brightness = &brightness
			}
			if flags.Changed("saturation") {
				req.Saturation = &saturation
			}

			c, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := c.SubmitVideo(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printSubmitted(cmd, ctx, resp)
		},
	}

	flags := cmd.Flags()
	sel.register(flags)
	flags.IntVar(&req.DurationSeconds, "duration", 0, "Target video length in seconds (0 uses the default frame rate)")
	flags.StringVar(&req.Resolution, "resolution", "HD", "Output resolution: 720, HD or 4K")
	flags.BoolVar(&req.ShowDate, "show-date", false, "Burn each still's capture time into its frame")
	flags.StringVar(&req.Caption, "caption", "", "Caption drawn along the bottom edge")
	flags.StringVar(&req.LogoPath, "logo", "", "Logo image under the media root (consumed by the job)")
	flags.StringVar(&req.WatermarkPath, "watermark", "", "Watermark image under the media root (consumed by the job)")
	flags.StringVar(&req.MusicTrack, "music-track", "", "Music track from the configured music directory")
	flags.Float64Var(&contrast, "contrast", 1, "Contrast adjustment")
	flags.Float64Var(&brightness, "brightness", 0, "Brightness adjustment")
	flags.Float64Var(&saturation, "saturation", 1, "Saturation adjustment")
	return cmd
}

func newSubmitPhotoCommand(ctx *commandContext) *cobra.Command {
	var sel selectionFlags

	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Queue a zip archive of selected stills",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := c.SubmitPhoto(cmd.Context(), api.PhotoRequest{Selection: sel.selection, Submitter: sel.submitter})
			if err != nil {
				return err
			}
			return printSubmitted(cmd, ctx, resp)
		},
	}
	sel.register(cmd.Flags())
	return cmd
}

func printSubmitted(cmd *cobra.Command, ctx *commandContext, resp api.SubmitResponse) error {
	if ok, err := writeStructured(cmd, ctx, resp); ok {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintf(out, "Job ID: %s\n", resp.JobID)
	fmt.Fprintf(out, "Images: %s\n", formatCount(resp.FilteredImageCount))
	return nil
}
