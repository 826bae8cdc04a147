package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Global flags:
//   - --verbose (-v): debug-level logging
//   - --gemfile: manifest to use instead of the one found in the working directory
//   - --no-cache: bypass the registry response cache
//   - --jobs (-j): parallel registry fetches
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Gemlock resolves Ruby gem dependencies into a lockfile",
		Long: `Gemlock reads a Gemfile (or Gemfile.toml), resolves every gem against the declared
sources and keeps Gemfile.lock in sync, moving locked versions only when asked to.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.global.verbose {
				c.SetLogLevel(LogDebug)
			}
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.BoolVarP(&c.global.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVar(&c.global.gemfile, "gemfile", "", "path to the Gemfile")
	flags.BoolVar(&c.global.noCache, "no-cache", false, "do not read or write the response cache")
	flags.IntVarP(&c.global.jobs, "jobs", "j", 0, "parallel registry fetches (default from settings)")

	root.AddCommand(c.lockCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.platformCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.outdatedCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())

	return root
}

// versionCommand prints the build information.
func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), appName+" "+buildinfo.String())
		},
	}
}
