package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/chatscribe/internal/exporter"
	"github.com/xkilldash9x/chatscribe/internal/observability"
)

func newConvertCmd(s *cliState) *cobra.Command {
	convertCmd := &cobra.Command{
		Use:   "convert <file.html>",
		Short: "Convert a saved conversation page without a browser",
		Long: `Runs the static extraction over an HTML file saved from the browser
(File > Save Page As, or a DevTools "Copy outerHTML" of the document).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			exp, err := exporter.New(s.cfg, observability.GetLogger(), exporter.WithPreviewWriter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			source := path
			if abs, err := filepath.Abs(path); err == nil {
				source = "file://" + filepath.ToSlash(abs)
			}
			res, err := exp.ExportSnapshot(f, source)
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), res)
		},
	}
	addOutputFlags(convertCmd.Flags())
	return convertCmd
}
