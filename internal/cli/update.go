package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/lockfile"
	"github.com/matzehuels/gemlock/pkg/resolver"
)

// updateFlags holds flags for the update command.
type updateFlags struct {
	all          bool
	groups       []string
	sources      []string
	ruby         bool
	conservative bool
	local        bool
	levels       levelFlags
}

// levelFlags are the --major/--minor/--patch/--strict flags shared by
// update and lock.
type levelFlags struct {
	major, minor, patch bool
	strict              bool
}

func (l *levelFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&l.major, "major", false, "prefer updating to the newest major version (default)")
	fs.BoolVar(&l.minor, "minor", false, "prefer updating only to the newest minor version")
	fs.BoolVar(&l.patch, "patch", false, "prefer updating only to the newest patch version")
	fs.BoolVar(&l.strict, "strict", false, "do not allow any gem to move past the chosen level")
}

// apply sets the update level on opts. At most one level may be given.
func (l levelFlags) apply(opts *definition.Options) error {
	var set []string
	for i, on := range []bool{l.major, l.minor, l.patch} {
		if on {
			set = append(set, "--"+resolver.Level(i).String())
		}
	}
	if len(set) > 1 {
		return errors.New(errors.ErrCodeInvalidOption, "provide only one of --major, --minor and --patch, got %s", strings.Join(set, " "))
	}
	switch {
	case l.minor:
		opts.Level = resolver.LevelMinor
	case l.patch:
		opts.Level = resolver.LevelPatch
	default:
		opts.Level = resolver.LevelMajor
	}
	opts.Strict = l.strict
	return nil
}

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	flags := updateFlags{}

	cmd := &cobra.Command{
		Use:   "update [gems...]",
		Short: "Update gems to the newest versions the Gemfile allows",
		Long: `Update gems to the newest versions the Gemfile allows and rewrite the lockfile.

Without arguments every gem is updated. Named gems and --group need an
existing lockfile.`,
		Example: `  # Update everything
  gemlock update --all

  # Update rails and its dependencies
  gemlock update rails

  # Update only the test group, leaving shared dependencies alone
  gemlock update --group test --conservative

  # Take only patch releases of rack
  gemlock update rack --patch --strict

  # Move a git source to its newest commit
  gemlock update --source rails`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specific := len(args) > 0 || len(flags.groups) > 0 || len(flags.sources) > 0 || flags.ruby
			if flags.all && specific {
				return errors.New(errors.ErrCodeInvalidOption, "cannot specify --all along with specific options")
			}
			opts := definition.Options{
				UpdateAll:    !specific,
				Update:       args,
				Groups:       flags.groups,
				Sources:      flags.sources,
				Ruby:         flags.ruby,
				Conservative: flags.conservative,
			}
			if err := flags.levels.apply(&opts); err != nil {
				return err
			}
			return c.runUpdate(cmd, opts, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "update every gem")
	cmd.Flags().StringSliceVarP(&flags.groups, "group", "g", nil, "update the gems of a group")
	cmd.Flags().StringSliceVar(&flags.sources, "source", nil, "update the gems of a git or path source")
	cmd.Flags().BoolVar(&flags.ruby, "ruby", false, "record the current ruby version in the lockfile")
	cmd.Flags().BoolVar(&flags.conservative, "conservative", false, "do not unlock dependencies of updated gems")
	cmd.Flags().BoolVar(&flags.local, "local", false, "use only cached and locally available gems")
	flags.levels.register(cmd.Flags())

	return cmd
}

func (c *CLI) runUpdate(cmd *cobra.Command, opts definition.Options, flags updateFlags) error {
	ctx := cmd.Context()
	p, err := c.openProject(ctx, "")
	if err != nil {
		return err
	}
	defer p.close(c.Logger)

	if p.locked == nil && !opts.UpdateAll {
		return errors.New(errors.ErrCodeLockfileNotFound,
			"updating specific gems needs a lockfile; run %s lock first", appName)
	}

	d, err := c.definition(p, opts)
	if err != nil {
		return err
	}
	if err := c.resolve(ctx, d, flags.local); err != nil {
		return err
	}
	written, err := d.Lock(p.lockPath, lockfile.WriteOptions{PreserveUnknown: true})
	if err != nil {
		return err
	}
	printLockResult(p.lockPath, written, d.Diff())

	lg, err := d.ToLock()
	if err != nil {
		return err
	}
	updated := d.Updated()
	for _, ch := range d.Diff().Regressions(updated) {
		printWarning("Note: %s version regressed from %s to %s", ch.Name, ch.From, ch.To)
	}
	for _, name := range d.Diff().Unchanged(updated, lg) {
		printWarning("attempted to update %s but its version stayed the same", name)
	}
	return nil
}
