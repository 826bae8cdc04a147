package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/lockfile"
)

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that every gem the lockfile needs is installed",
		Long: `Resolve the Gemfile against locally available data only, check that the
current ruby can run the bundle and report gems missing from the install
path. When everything is present the lockfile is
rewritten, keeping sections this version does not understand.`,
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
			if err := c.resolve(ctx, d, true); err != nil {
				return err
			}
			rt, err := c.runtime(ctx, p.settings)
			if err != nil {
				return err
			}
			if err := d.ValidateRuntime(rt); err != nil {
				return err
			}

			inv := definition.DirInventory{Root: p.settings.InstallPath}
			missing, err := d.MissingSpecs(inv, rt.Platform)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				printError("The following gems are missing")
				for _, s := range missing {
					printDetail("* %s", s)
				}
				printNextStep("Download them with", appName+" cache fetch")
				return errors.New(errors.ErrCodeNotFound, "%d gems are not installed", len(missing))
			}

			printSuccess("The Gemfile's dependencies are satisfied")
			if dryRun {
				return nil
			}
			written, err := d.Lock(p.lockPath, lockfile.WriteOptions{PreserveUnknown: true})
			if err != nil {
				return err
			}
			if written {
				printFile(p.lockPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write the lockfile")

	return cmd
}
