package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gemlock/pkg/platform"
)

// patchlevel matches the MRI patchlevel suffix of a locked ruby version.
var patchlevel = regexp.MustCompile(`p\d+$`)

// platformCommand creates the platform command.
func (c *CLI) platformCommand() *cobra.Command {
	var rubyOnly bool

	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Show the locked platforms and the required ruby version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.openProject(ctx, "")
			if err != nil {
				return err
			}
			defer p.close(c.Logger)

			req, hasRuby := p.model.RubyRequirement()
			if rubyOnly {
				if p.locked != nil && p.locked.RubyVersion != "" {
					fmt.Fprintln(cmd.OutOrStdout(), patchlevel.ReplaceAllString(p.locked.RubyVersion, ""))
					return nil
				}
				if !hasRuby {
					fmt.Fprintln(cmd.OutOrStdout(), "No ruby version specified")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ruby "+req.String())
				return nil
			}

			local := c.localPlatform()
			platforms := platform.Set{local}
			if p.locked != nil {
				platforms = p.locked.Platforms
			}
			printKeyValue("Local", local.String())
			printKeyValue("Platforms", strings.Join(platforms.Strings(), ", "))
			if hasRuby {
				printKeyValue("Ruby", req.String())
			} else {
				printKeyValue("Ruby", "any")
			}
			if p.locked != nil && p.locked.RubyVersion != "" {
				printKeyValue("Locked ruby", p.locked.RubyVersion)
			}

			if !platforms.Contains(local) && !platforms.Contains(platform.Ruby) {
				printWarning("The lockfile does not include the local platform")
				printNextStep("Add it with", appName+" lock --add-platform "+local.String())
			}
			if hasRuby {
				if rt, err := c.runtime(ctx, p.settings); err == nil && !req.Satisfied(rt.RubyVersion) {
					printWarning("Your ruby version is %s, but your Gemfile specified %s", rt.RubyVersion, req)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rubyOnly, "ruby", false, "only print the locked ruby version, or the Gemfile's requirement")

	return cmd
}
