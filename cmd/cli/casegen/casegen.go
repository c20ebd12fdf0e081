package casegen

import (
	"io"
	"log/slog"
	"strings"

	"github.com/myrjola/misterio/cmd/cli/aiconfig"
	"github.com/myrjola/misterio/internal/catalog"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/logging"
	"github.com/myrjola/misterio/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var Group = &cobra.Group{
	ID:    "case",
	Title: "Mystery operations",
}

func init() {
	Generate.Flags().String("level", string(models.LevelA1), "proficiency level from A0 to C1")
	Generate.Flags().Duration("timeout", catalog.DefaultGenerationTimeout, "generation timeout")
	Generate.Flags().Bool("builtin", false, "print the builtin case instead of generating one")
}

// Generate prints a case as YAML in the format of the builtin case document.
var Generate = &cobra.Command{
	Use:     "case-gen [theme]",
	GroupID: "case",
	Short:   "Generate a mystery",
	Long: `Generates a mystery about the theme and prints it as YAML. Invalid generations fall back to the builtin
case, so the output is always playable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		levelFlag, err := cmd.Flags().GetString("level")
		if err != nil {
			return errors.Wrap(err, "invalid level flag")
		}
		level, ok := models.ParseProficiencyLevel(levelFlag)
		if !ok {
			return errors.New("unknown proficiency level", slog.String("level", levelFlag))
		}
		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return errors.Wrap(err, "invalid timeout flag")
		}
		builtin, err := cmd.Flags().GetBool("builtin")
		if err != nil {
			return errors.Wrap(err, "invalid builtin flag")
		}

		c := catalog.Builtin()
		if !builtin {
			client, clientErr := aiconfig.NewClient()
			if clientErr != nil {
				return clientErr
			}
			c = catalog.New(client, timeout, newLogger(cmd.ErrOrStderr())).
				Generate(cmd.Context(), strings.Join(args, " "), level)
		}
		return writeCase(cmd.OutOrStdout(), c)
	},
}

func writeCase(w io.Writer, c models.Case) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2) //nolint:mnd // matches builtin.yaml
	if err := encoder.Encode(c); err != nil {
		return errors.Wrap(err, "encode case")
	}
	return errors.Wrap(encoder.Close(), "flush case")
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelInfo,
		ReplaceAttr: nil,
	})))
}
