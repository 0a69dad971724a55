package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackvity/asset-compiler/internal/cli"
	"github.com/stackvity/asset-compiler/internal/cli/config"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "asset-compiler [masks...]",
	Short: "Converts game assets from one or more source roots into a target root.",
	Long: `asset-compiler walks the source roots, picks a converter for every file by
its extension and converts the files in parallel into the target root.

Masks are optional file name globs (for example "*.png") restricting the run.
Images whose conversion runs out of memory are retried on a single thread.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logs := cli.NewHoldWriter(cmd.ErrOrStderr())
		params := configParams(cmd, args, logs)
		var tty io.Writer
		if params.Terminal {
			tty = cmd.ErrOrStderr()
		}
		loaded, err := config.LoadAndValidate(params)
		if err != nil {
			return err
		}
		defer func() { _ = loaded.Close() }()

		return cli.Run(ctx, loaded.Options, loaded.Logger, cli.Environment{
			Stdout:   cmd.OutOrStdout(),
			Terminal: tty,
			Logs:     logs,
		})
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	rootCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")
	return rootCmd.Execute()
}

func init() {
	config.DefineFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(convertersCmd)
}

// configParams builds the config parameters. Logs go to stderr, which may wrap
// the command's error stream; terminal detection always looks at the stream.
func configParams(cmd *cobra.Command, args []string, stderr io.Writer) config.Params {
	cfgFile, _ := cmd.Flags().GetString(config.FlagConfig)
	profile, _ := cmd.Flags().GetString(config.FlagProfile)
	return config.Params{
		ConfigFile: cfgFile,
		Profile:    profile,
		AppVersion: version,
		Masks:      args,
		Flags:      cmd.Flags(),
		Stderr:     stderr,
		Terminal:   config.IsTerminal(cmd.ErrOrStderr()),
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
