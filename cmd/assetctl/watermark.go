package main

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"medialib/internal/media/watermark"
)

func newWatermarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Watermark settings tools",
	}
	cmd.AddCommand(newWatermarkPreviewCmd())
	return cmd
}

func newWatermarkPreviewCmd() *cobra.Command {
	var (
		settingsPath string
		logoPath     string
		out          string
		width        int
		height       int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render watermark settings over a neutral canvas",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := watermark.DefaultSettings()
			if err := readYAML(settingsPath, &settings); err != nil {
				return err
			}
			settings.Enabled = true
			if err := settings.Validate(); err != nil {
				return err
			}

			var logo image.Image
			if logoPath != "" {
				var err error
				if logo, err = decodeFile(logoPath); err != nil {
					return fmt.Errorf("logo: %w", err)
				}
			}

			img, err := watermark.Preview(width, height, settings, logo)
			if err != nil {
				return err
			}
			if err := writeImage(out, img, 0); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d)\n", out, width, height)
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "watermark settings (YAML)")
	cmd.Flags().StringVar(&logoPath, "logo", "", "logo image for logo watermarks")
	cmd.Flags().StringVar(&out, "out", "preview.png", "output file")
	cmd.Flags().IntVar(&width, "width", 1000, "canvas width")
	cmd.Flags().IntVar(&height, "height", 667, "canvas height")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}
