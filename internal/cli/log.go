// Package cli implements the gemlock command-line interface.
//
// The commands resolve a Gemfile (or Gemfile.toml) against its gem sources
// and maintain the Gemfile.lock next to it. The CLI is built using cobra,
// logs via charmbracelet/log and maps every coded error to a stable exit
// status through [ExitCode].
//
// # Commands
//
// The main commands are:
//   - lock: Resolve the Gemfile and write the lockfile, keeping locked versions
//   - update: Unlock gems (all, named, by group or by source) and re-resolve
//   - check: Resolve offline, validate the ruby and report missing gems
//   - platform: Show the locked platforms and ruby version
//   - list: Print the gems installable on this machine
//   - outdated: Compare locked versions with the newest available ones
//   - cache: Fetch package files, show or clear the response cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Resolution
// phases are timed with a progress logger and, when trace_file is set, also
// recorded as OpenTelemetry spans.
//
// # Example
//
//	import "github.com/matzehuels/gemlock/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().ExecuteContext(ctx); err != nil {
//	        os.Exit(cli.ExitCode(err))
//	    }
//	}
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates the command logger. Timestamps carry hundredths of a
// second ("14:32:01.45") so slow registry fetches stand out in -v output.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress times one phase of a command, such as a resolution or a fetch.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress starts timing a phase now.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg at debug level with the elapsed time, rounded to the
// millisecond, appended to keyvals.
func (p *progress) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Debug(msg, keyvals...)
}
