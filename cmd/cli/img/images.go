package img

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/myrjola/misterio/cmd/cli/aiconfig"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "img",
	Title: "Image operations",
}

func init() {
	Generate.Flags().String("out", "./out.png", "path to generated image file")
}

var Generate = &cobra.Command{
	Use:     "img-gen [prompt]",
	GroupID: "img",
	Short:   "Generate image",
	Long:    `Generates an illustration, such as a location or collectible picture, with DALL-E.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := aiconfig.NewClient()
		if err != nil {
			return err
		}

		imgBytes, err := client.GenerateImage(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return errors.Wrap(err, "generate image")
		}

		// Decoding checks that the service returned a valid PNG.
		imgData, err := png.Decode(bytes.NewReader(imgBytes))
		if err != nil {
			return errors.Wrap(err, "decode PNG")
		}

		outPath, err := cmd.Flags().GetString("out")
		if err != nil {
			return errors.Wrap(err, "invalid out flag")
		}
		file, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "create file")
		}
		defer func(file *os.File) {
			_ = file.Close()
		}(file)

		if err = png.Encode(file, imgData); err != nil {
			return errors.Wrap(err, "encode PNG")
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "The image was saved as %s\n", outPath)
		return nil
	},
}
