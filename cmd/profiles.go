package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/chatscribe/internal/selectors"
)

func newProfilesCmd(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the selector profiles, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMESSAGES\tASSISTANT CONTENT\tEDIT/COPY")
			for _, p := range selectors.FromConfig(s.cfg.Selectors) {
				content := p.AssistantContentSelector
				if content == "" {
					content = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s / %s\n",
					p.Name,
					p.MessageSelector,
					content,
					strings.Join(p.EditButtonTexts, ","),
					strings.Join(p.CopyButtonTexts, ","))
			}
			return w.Flush()
		},
	}
}
