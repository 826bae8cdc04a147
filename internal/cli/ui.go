package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/gemlock/pkg/lockfile"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorRuby   = lipgloss.Color("161") // Ruby red - headings
	colorCyan   = lipgloss.Color("36")  // Teal - spinner, versions
	colorGreen  = lipgloss.Color("35")  // Green - success, added gems
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors, removed gems
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - labels
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	// StyleTitle for section headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorRuby)

	// StyleDim for secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for paths and other data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for versions and counts.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleLabel       = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
)

// marker is a status icon with its color.
type marker struct {
	icon  string
	style lipgloss.Style
}

var (
	markSuccess = marker{"✓", lipgloss.NewStyle().Foreground(colorGreen)}
	markError   = marker{"✗", lipgloss.NewStyle().Foreground(colorRed)}
	markWarning = marker{"!", lipgloss.NewStyle().Foreground(colorYellow)}
	markInfo    = marker{"›", lipgloss.NewStyle().Foreground(colorGray)}
	markAdded   = marker{"+", lipgloss.NewStyle().Foreground(colorGreen)}
	markRemoved = marker{"-", lipgloss.NewStyle().Foreground(colorRed)}
	markChanged = marker{"~", StyleDim}
)

const iconArrow = "→"

// uiOut receives human-oriented status lines. Machine-readable output
// (list, --print, --ruby) goes to the command's stdout instead.
var uiOut io.Writer = os.Stdout

func (m marker) line(indent, msg string) {
	fmt.Fprintln(uiOut, indent+m.style.Render(m.icon)+" "+msg)
}

// =============================================================================
// Status Lines
// =============================================================================

func printSuccess(format string, args ...any) {
	markSuccess.line("", fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	markError.line("", fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	markWarning.line("", StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	markInfo.line("", fmt.Sprintf(format, args...))
}

// printDetail prints an indented, muted line under the previous status.
func printDetail(format string, args ...any) {
	fmt.Fprintln(uiOut, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a path the command wrote or fetched.
func printFile(path string) {
	fmt.Fprintln(uiOut, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Fprintln(uiOut, styleLabel.Render(key)+" "+StyleValue.Render(value))
}

// printNextStep suggests the command that fixes what was just reported.
func printNextStep(description, cmd string) {
	fmt.Fprintln(uiOut, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// =============================================================================
// Lock Changes
// =============================================================================

// printDiff prints one line per gem the lock change added, removed, moved
// between versions or moved between sources.
func printDiff(d lockfile.Diff) {
	for _, name := range d.Added {
		markAdded.line("  ", name)
	}
	for _, name := range d.Removed {
		markRemoved.line("  ", name)
	}
	for _, changes := range [][]lockfile.Change{d.Upgraded, d.Downgraded} {
		for _, c := range changes {
			markChanged.line("  ", c.Name+" "+StyleNumber.Render(c.From.String())+
				StyleDim.Render(" "+iconArrow+" ")+StyleNumber.Render(c.To.String()))
		}
	}
	for _, name := range d.Moved {
		printDetail("%s changed source", name)
	}
}

// printLockResult reports whether path was rewritten and what moved.
func printLockResult(path string, written bool, d lockfile.Diff) {
	if !written {
		printInfo("Lockfile is up to date")
		return
	}
	printSuccess("Wrote %s", StyleValue.Render(path))
	if d.Empty() {
		printDetail("No gem versions changed")
		return
	}
	printDiff(d)
}
