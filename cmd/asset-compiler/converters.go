package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackvity/asset-compiler/internal/cli"
	"github.com/stackvity/asset-compiler/internal/cli/config"
	"github.com/stackvity/asset-compiler/internal/cli/runner"
)

var convertersCmd = &cobra.Command{
	Use:   "converters",
	Short: "Lists the converters the current configuration binds, with their extensions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		params := configParams(cmd, nil, cmd.ErrOrStderr())
		params.SkipPaths = true
		loaded, err := config.LoadAndValidate(params)
		if err != nil {
			return err
		}
		defer func() { _ = loaded.Close() }()

		reg, err := cli.BuildRegistry(loaded.Options, runner.NewExecRunner(loaded.Options.Logger), loaded.Logger)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderConverters(reg))
		return err
	},
}
