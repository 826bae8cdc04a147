package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/lockfile"
)

// lockFlags holds flags for the lock command.
type lockFlags struct {
	update          bool
	conservative    bool
	addPlatforms    []string
	removePlatforms []string
	local           bool
	print           bool
	lockfile        string
	dropUnknown     bool
	frozen          bool
	levels          levelFlags
}

// lockCommand creates the lock command for resolving without installing.
func (c *CLI) lockCommand() *cobra.Command {
	flags := lockFlags{}

	cmd := &cobra.Command{
		Use:   "lock [gems...]",
		Short: "Resolve the Gemfile and write the lockfile",
		Long: `Resolve the Gemfile and write the lockfile.

Locked versions are kept unless --update is given. With --update and no gem
names every gem may move; with names only those gems (and, unless
--conservative, the gems they depend on) may move.`,
		Example: `  # Lock new Gemfile entries, keeping everything else
  gemlock lock

  # Allow rack and its dependencies to move
  gemlock lock --update rack

  # Let every gem move, but only within its locked minor version
  gemlock lock --update --patch

  # Also lock for Linux servers
  gemlock lock --add-platform x86_64-linux`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !flags.update {
				return errors.New(errors.ErrCodeInvalidOption, "gem names need --update")
			}
			opts := definition.Options{
				Conservative:    flags.conservative,
				AddPlatforms:    flags.addPlatforms,
				RemovePlatforms: flags.removePlatforms,
			}
			if flags.update {
				if len(args) == 0 {
					opts.UpdateAll = true
				} else {
					opts.Update = args
				}
				if err := flags.levels.apply(&opts); err != nil {
					return err
				}
			}
			return c.runLock(cmd, opts, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.update, "update", false, "allow the named gems (all without names) to move")
	cmd.Flags().BoolVar(&flags.conservative, "conservative", false, "do not unlock dependencies of updated gems")
	cmd.Flags().StringSliceVar(&flags.addPlatforms, "add-platform", nil, "add a platform to the lockfile")
	cmd.Flags().StringSliceVar(&flags.removePlatforms, "remove-platform", nil, "remove a platform from the lockfile")
	cmd.Flags().BoolVar(&flags.local, "local", false, "use only cached and locally available gems")
	cmd.Flags().BoolVar(&flags.print, "print", false, "print the lockfile instead of writing it")
	cmd.Flags().StringVar(&flags.lockfile, "lockfile", "", "lockfile path (default: next to the Gemfile)")
	cmd.Flags().BoolVar(&flags.frozen, "frozen", false, "fail instead of changing the lockfile")
	cmd.Flags().BoolVar(&flags.dropUnknown, "drop-unknown", false, "drop lockfile sections this version does not understand")
	flags.levels.register(cmd.Flags())

	return cmd
}

func (c *CLI) runLock(cmd *cobra.Command, opts definition.Options, flags lockFlags) error {
	ctx := cmd.Context()
	p, err := c.openProject(ctx, flags.lockfile)
	if err != nil {
		return err
	}
	defer p.close(c.Logger)
	if flags.frozen {
		p.settings = p.settings.WithFrozen(true)
	}

	d, err := c.definition(p, opts)
	if err != nil {
		return err
	}
	if err := c.resolve(ctx, d, flags.local); err != nil {
		return err
	}

	wopts := lockfile.WriteOptions{PreserveUnknown: !flags.dropUnknown}
	if flags.print {
		lg, err := d.ToLock()
		if err != nil {
			return err
		}
		return lockfile.Write(cmd.OutOrStdout(), lg, wopts)
	}

	written, err := d.Lock(p.lockPath, wopts)
	if err != nil {
		return err
	}
	printLockResult(p.lockPath, written, d.Diff())
	return nil
}
