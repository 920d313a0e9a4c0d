// Package cmd implements the command line of the player.
package cmd

import (
	"fmt"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/config"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "player [flags] <directory | file...>",
		Short: "Play local media files back to back without gaps",
		Long: `player plays a list of local media files one after the other. The next
file is opened and decoded while the current one is still playing, so the
switch between files shows no black frames.

A directory argument plays its regular files in name order. Use the arrow
keys to seek: left/right by 10 seconds, down/up by one minute.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWith(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./player.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("log-file", "", "write the log to this file instead of stderr")
	cmd.Flags().Bool("include-hidden", false, "play hidden files of a directory")
	cmd.Flags().Bool("no-audio", false, "do not open an audio device")
	cmd.Flags().String("sync", "auto", "master clock (auto, audio, video, external)")

	mustBindPFlag(v, "logging.level", flags.Lookup("log-level"))
	mustBindPFlag(v, "logging.format", flags.Lookup("log-format"))
	mustBindPFlag(v, "logging.file", flags.Lookup("log-file"))
	mustBindPFlag(v, "playlist.include_hidden", cmd.Flags().Lookup("include-hidden"))
	mustBindPFlag(v, "renderer.sync", cmd.Flags().Lookup("sync"))
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("no-audio") {
			noAudio, _ := cmd.Flags().GetBool("no-audio")
			v.Set("audio.enabled", !noAudio)
		}
	}

	return cmd
}

// mustBindPFlag binds a flag to a config key. Flags only override the file
// and the environment when they were set on the command line.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	lo.Must0(v.BindPFlag(key, flag), fmt.Sprintf("binding flag %q to %q", flag.Name, key))
}
