package cli

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/resolver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var paths bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the gems of the bundle",
		Long: `List the gems the bundle installs on this platform, resolving first when the
lockfile does not satisfy the Gemfile. The runtime must satisfy the Gemfile's
ruby requirement and every gem's required ruby version.`,
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
			specs, err := d.SpecsFor(rt.Platform)
			if err != nil {
				return err
			}
			slices.SortFunc(specs, func(a, b resolver.ResolvedSpec) int { return cmp.Compare(a.Name, b.Name) })

			out := cmd.OutOrStdout()
			for _, s := range specs {
				if paths {
					fmt.Fprintln(out, installPath(p.settings.InstallPath, s))
					continue
				}
				fmt.Fprintf(out, "  * %s\n", s)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&paths, "paths", false, "print the install path of each gem")

	return cmd
}

// installPath is where s lives once installed.
func installPath(root string, s resolver.ResolvedSpec) string {
	switch src := s.Source.(type) {
	case *source.Path:
		return src.Dir()
	case *source.Git:
		return src.Dir()
	}
	return filepath.Join(root, "gems", s.FullName())
}
