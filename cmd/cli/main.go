package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/misterio/cmd/cli/casegen"
	"github.com/myrjola/misterio/cmd/cli/img"
	"github.com/myrjola/misterio/cmd/cli/speech"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(img.Group, casegen.Group, speech.Group)
	rootCmd.AddCommand(img.Generate, casegen.Generate, speech.Speak)
}

var rootCmd = &cobra.Command{
	Use:          "misterio-cli",
	Long:         `Command line utilities for authoring Misterio mysteries.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
