// Package cmd wires ubifsck's Cobra command tree, viper configuration
// binding, and the top-level call into internal/fsck, mirroring the
// teacher's own cmd/root.go: package-level vars capture binding/config
// errors during init() and OnInitialize so RunE can report them through
// the normal Cobra error path instead of panicking at package load time.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ubifsck/ubifsck/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// RunConfig is the fully bound configuration, populated by
	// initConfig before RunE runs.
	RunConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "ubifsck <volume>",
	Short: "Check and repair a UBIFS volume.",
	Long: "ubifsck inspects a UBIFS volume's superblock, master node, index\n" +
		"and journal for consistency, reporting or fixing problems according\n" +
		"to the selected mode, and escalating to a full scavenging rebuild\n" +
		"when the index or master cannot be trusted.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return fmt.Errorf("binding flags: %w", bindErr)
		}
		if configFileErr != nil {
			return fmt.Errorf("reading config file: %w", configFileErr)
		}
		if unmarshalErr != nil {
			return fmt.Errorf("unmarshalling config: %w", unmarshalErr)
		}

		RunConfig.Volume = args[0]
		if err := cfg.Rationalize(&RunConfig); err != nil {
			return fmt.Errorf("rationalizing config: %w", err)
		}
		if err := cfg.ValidateConfig(&RunConfig); err != nil {
			return err
		}

		return runFsck(cmd, &RunConfig)
	},
}

// Execute runs the root command, printing any error to stderr and
// exiting the process with status 1, the same top-level shape as the
// teacher's own Execute.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

// initConfig resolves viper's sources — flags already bound in init(),
// plus an optional config file — and unmarshals the result into
// RunConfig, recording any error for RunE to surface rather than exiting
// here (OnInitialize callbacks run before Cobra's own error handling is
// wired up for this invocation).
func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&RunConfig, viper.DecodeHook(cfg.DecodeHook()))
		return
	}

	path, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = err
		return
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = err
		return
	}
	unmarshalErr = viper.Unmarshal(&RunConfig, viper.DecodeHook(cfg.DecodeHook()))
}
