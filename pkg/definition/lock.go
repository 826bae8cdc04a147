package definition

import (
	"bytes"
	"slices"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/index"
	"github.com/matzehuels/gemlock/pkg/lockfile"
)

// ErrNotResolved is returned by accessors called before a resolution.
var ErrNotResolved = errors.New(errors.ErrCodeInternal, "definition has not been resolved")

// ToLock returns the lock produced by the last resolution.
func (d *Definition) ToLock() (*lockfile.LockedGems, error) {
	if d.lock == nil {
		return nil, ErrNotResolved
	}
	return d.lock, nil
}

// Diff returns the changes from the previous lock.
func (d *Definition) Diff() lockfile.Diff { return d.diff }

// Ambiguities returns the gem versions found in more than one source.
func (d *Definition) Ambiguities() []index.Ambiguity { return slices.Clone(d.ambiguities) }

// Reused reports whether the last resolution reused the previous lock
// without querying sources.
func (d *Definition) Reused() bool { return d.reused }

// NothingChanged reports whether the new lock serializes exactly like the
// previous one.
func (d *Definition) NothingChanged() bool {
	if d.lock == nil || d.locked == nil {
		return false
	}
	opts := lockfile.WriteOptions{PreserveUnknown: true}
	return bytes.Equal(lockfile.Marshal(d.locked, opts), lockfile.Marshal(d.lock, opts))
}

// Lock writes the new lock to path. It reports whether the file changed.
// With the frozen setting any change is a FROZEN error and nothing is
// written.
func (d *Definition) Lock(path string, opts lockfile.WriteOptions) (bool, error) {
	lg, err := d.ToLock()
	if err != nil {
		return false, err
	}
	if d.settings.Frozen && !d.NothingChanged() {
		if d.locked == nil {
			return false, errors.New(errors.ErrCodeFrozen, "the lockfile is missing and the bundle is frozen")
		}
		return false, errors.New(errors.ErrCodeFrozen,
			"the lockfile would change but the bundle is frozen (added: %v, removed: %v, changed: %d)",
			d.diff.Added, d.diff.Removed, len(d.diff.Upgraded)+len(d.diff.Downgraded))
	}
	wrote, err := lockfile.WriteFile(path, lg, opts)
	if err != nil {
		return false, err
	}
	if wrote {
		d.logger.Debug("wrote lockfile", "path", path, "digest", lockfile.Digest(lg, opts))
	}
	return wrote, nil
}
