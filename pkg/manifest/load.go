package manifest

import (
	"os"
	"path/filepath"

	"github.com/matzehuels/gemlock/pkg/errors"
)

// Manifest file names, in detection order.
const (
	TOMLName    = "Gemfile.toml"
	GemfileName = "Gemfile"
	GemsRBName  = "gems.rb"
)

var candidates = []string{TOMLName, GemfileName, GemsRBName}

// Detect returns the manifest in dir.
func Detect(dir string) (string, error) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.New(errors.ErrCodeNotFound, "no Gemfile, gems.rb or Gemfile.toml in %s", dir)
}

// Load parses the manifest at path, choosing the parser by file name.
func Load(path string) (*Model, error) {
	if err := errors.ValidateManifestFilename(filepath.Base(path)); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "manifest %s not found", path)
		}
		return nil, err
	}
	defer f.Close()

	switch filepath.Base(path) {
	case TOMLName:
		return ParseTOML(f)
	case GemfileName, GemsRBName:
		return ParseGemfile(f)
	default:
		if filepath.Ext(path) == ".toml" {
			return ParseTOML(f)
		}
		return ParseGemfile(f)
	}
}

// LockPath returns the lockfile that belongs to the manifest at path.
func LockPath(path string) string {
	dir := filepath.Dir(path)
	if filepath.Base(path) == GemsRBName {
		return filepath.Join(dir, "gems.locked")
	}
	return filepath.Join(dir, "Gemfile.lock")
}
