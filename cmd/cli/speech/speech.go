package speech

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/myrjola/misterio/cmd/cli/aiconfig"
	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "speech",
	Title: "Speech operations",
}

func init() {
	Speak.Flags().String("out", "./out.mp3", "path to the synthesized MP3 file")
	Speak.Flags().String("voice", string(ai.DefaultVoice), "voice such as nova, alloy or shimmer")
	Speak.Flags().Float64("speed", 1, "speaking speed between 0.25 and 4")
}

var Speak = &cobra.Command{
	Use:     "speak [text]",
	GroupID: "speech",
	Short:   "Synthesize speech",
	Long:    `Synthesizes narration such as a case intro or clue into an MP3 file.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, err := cmd.Flags().GetString("out")
		if err != nil {
			return errors.Wrap(err, "invalid out flag")
		}
		voice, err := cmd.Flags().GetString("voice")
		if err != nil {
			return errors.Wrap(err, "invalid voice flag")
		}
		speed, err := cmd.Flags().GetFloat64("speed")
		if err != nil {
			return errors.Wrap(err, "invalid speed flag")
		}

		client, err := aiconfig.NewClient()
		if err != nil {
			return err
		}
		audio, err := client.Speak(cmd.Context(), strings.Join(args, " "), openai.SpeechVoice(voice), speed)
		if err != nil {
			return errors.Wrap(err, "synthesize speech")
		}
		defer func() {
			_ = audio.Close()
		}()

		file, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "create file")
		}
		defer func(file *os.File) {
			_ = file.Close()
		}(file)
		if _, err = io.Copy(file, audio); err != nil {
			return errors.Wrap(err, "write audio")
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "The narration was saved as %s\n", outPath)
		return nil
	},
}
