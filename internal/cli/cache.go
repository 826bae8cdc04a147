package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/definition"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry response cache and downloaded gems",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheFetchCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached registry responses and git clones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.projectDir()
			if err != nil {
				return err
			}
			settings, err := c.loadSettings(dir)
			if err != nil {
				return err
			}
			switch settings.CacheBackend {
			case "", cache.BackendFile:
			case cache.BackendNone:
				printInfo("Caching is disabled")
				return nil
			default:
				printWarning("The %s cache backend expires entries on its own", settings.CacheBackend)
				return nil
			}
			fc, err := cache.NewFileCache(settings.CacheDir)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			if err := fc.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			printSuccess("Cleared the cache")
			printDetail("Directory: %s", fc.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.projectDir()
			if err != nil {
				return err
			}
			settings, err := c.loadSettings(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), settings.CacheDir)
			return nil
		},
	}
}

// cacheFetchCommand creates the "cache fetch" subcommand.
func (c *CLI) cacheFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the package files of missing gems into the install path",
		Long: `Resolve the bundle, validate it against the local ruby and download the
package file of every gem missing from the install path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.openProject(ctx, "")
			if err != nil {
				return err
			}
			defer p.close(c.Logger)

			d, err := c.definition(p, definition.Options{})
			if err != nil {
				return err
			}
			if err := d.ResolveWithCache(ctx); err != nil {
				return err
			}
			rt, err := c.runtime(ctx, p.settings)
			if err != nil {
				return err
			}
			if err := d.ValidateRuntime(rt); err != nil {
				return err
			}

			spin := newSpinner(ctx, c.status, "Fetching gems...")
			spin.start()
			paths, err := d.Fetch(ctx, definition.DirInventory{Root: p.settings.InstallPath}, rt.Platform)
			spin.stop()
			for _, path := range paths {
				printFile(path)
			}
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				printInfo("All gems are already present")
				return nil
			}
			printSuccess("Fetched %d gems", len(paths))
			return nil
		},
	}
}
