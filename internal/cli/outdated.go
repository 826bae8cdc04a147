package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/lockfile"
)

// outdatedCommand creates the outdated command.
func (c *CLI) outdatedCommand() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "Show gems with newer versions the Gemfile allows",
		Long: `Resolve the Gemfile as "update --all" would, without writing the lockfile,
and list the gems whose version would change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.openProject(ctx, "")
			if err != nil {
				return err
			}
			defer p.close(c.Logger)

			if p.locked == nil {
				return errors.New(errors.ErrCodeLockfileNotFound, "no lockfile at %s; run %s lock first", p.lockPath, appName)
			}
			d, err := c.definition(p, definition.Options{UpdateAll: true})
			if err != nil {
				return err
			}
			if err := c.resolve(ctx, d, local); err != nil {
				return err
			}
			next, err := d.ToLock()
			if err != nil {
				return err
			}

			diff := lockfile.Compare(p.locked, next)
			if len(diff.Upgraded) == 0 {
				printSuccess("Bundle up to date!")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, StyleTitle.Render("Outdated gems included in the bundle:"))
			for _, ch := range diff.Upgraded {
				fmt.Fprintf(out, "  * %s (newest %s, installed %s)\n", ch.Name, ch.To, ch.From)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "use only cached and locally available gems")

	return cmd
}
