package cli

import (
	"context"
	"os/exec"
	"strings"

	"github.com/matzehuels/gemlock/pkg/config"
	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
)

// rubyCommand prints the version, engine and engine version of the ruby on
// PATH.
var rubyCommand = []string{"ruby", "-e", `print RUBY_VERSION, " ", RUBY_ENGINE, " ", RUBY_ENGINE_VERSION`}

// runtime describes the ruby gems are checked against. The ruby_version
// setting wins over the interpreter on PATH.
func (c *CLI) runtime(ctx context.Context, s config.Settings) (definition.Runtime, error) {
	if s.RubyVersion != "" {
		return c.parseRuntime(s.RubyVersion)
	}
	out, err := exec.CommandContext(ctx, rubyCommand[0], rubyCommand[1:]...).Output()
	if err != nil {
		return definition.Runtime{}, errors.Wrap(errors.ErrCodeRubyVersion, err,
			"could not run ruby to detect its version; set ruby_version or %sRUBY_VERSION", config.EnvPrefix)
	}
	return c.parseRuntime(string(out))
}

// parseRuntime reads "VERSION [ENGINE [ENGINE_VERSION]]". The ruby_version
// setting may name a non-MRI engine the same way, as in "3.1.4 jruby 9.4.5.0".
func (c *CLI) parseRuntime(raw string) (definition.Runtime, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return definition.Runtime{}, errors.New(errors.ErrCodeRubyVersion, "empty ruby version")
	}
	v, err := gemver.Parse(fields[0])
	if err != nil {
		return definition.Runtime{}, errors.Wrap(errors.ErrCodeRubyVersion, err, "invalid ruby version %q", fields[0])
	}
	rt := definition.Runtime{RubyVersion: v, Platform: c.localPlatform()}
	if len(fields) > 1 {
		rt.Engine = fields[1]
	}
	if len(fields) > 2 {
		if rt.EngineVersion, err = gemver.Parse(fields[2]); err != nil {
			return definition.Runtime{}, errors.Wrap(errors.ErrCodeRubyVersion, err, "invalid %s version %q", rt.Engine, fields[2])
		}
	}
	c.Logger.Debug("runtime", "ruby", rt)
	return rt, nil
}
