package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/browser"
	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/exporter"
	"github.com/xkilldash9x/chatscribe/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// openTab starts or attaches to the browser and opens a tab. Replaced in
// tests.
var openTab = func(ctx context.Context, logger *zap.Logger, cfg *config.Config) (exporter.Browser, func(), error) {
	mgr, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	sess, err := mgr.NewSession(ctx)
	if err != nil {
		closeManager(ctx, logger, mgr)
		return nil, nil, err
	}
	cleanup := func() {
		_ = sess.Close(ctx)
		closeManager(ctx, logger, mgr)
	}
	return sess, cleanup, nil
}

func closeManager(ctx context.Context, logger *zap.Logger, mgr *browser.Manager) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := mgr.Close(cctx); err != nil {
		logger.Warn("Browser shutdown was not clean.", zap.Error(err))
	}
}

func newExportCmd(s *cliState) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export <url>",
		Short: "Open a conversation in Chrome and export it",
		Long: `Opens the conversation URL in a new Chrome tab, extracts the messages and
writes them as Markdown.

To reuse a logged-in profile, start Chrome with --remote-debugging-port=9222
and pass --remote-url http://localhost:9222. The tab is opened in that browser
and closed afterwards; the browser keeps running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), s.cfg, args[0], cmd.OutOrStdout())
		},
	}

	f := exportCmd.Flags()
	addOutputFlags(f)
	f.String("mode", "", "extraction strategy: static, interactive or auto")
	f.String("remote-url", "", "DevTools URL of a running Chrome to attach to")
	f.Bool("headless", true, "run the launched Chrome without a window")
	bindTo(f, "mode", "export.mode")
	bindTo(f, "remote-url", "browser.remote_url")
	bindTo(f, "headless", "browser.headless")
	return exportCmd
}

// addOutputFlags defines the flags shared by export and convert.
func addOutputFlags(f *pflag.FlagSet) {
	f.StringP("output", "o", "", "output directory")
	f.String("file", "", "output file name (default: derived from the conversation title)")
	f.String("format", "", "output format: md, json or both")
	f.String("engine", "", "markdown engine: native or commonmark")
	f.String("profile", "", "selector profile (default: detect)")
	f.Bool("preview", false, "render the transcript in the terminal")
	bindTo(f, "output", "export.output_dir")
	bindTo(f, "file", "export.file_name")
	bindTo(f, "format", "export.format")
	bindTo(f, "engine", "export.engine")
	bindTo(f, "profile", "export.profile")
	bindTo(f, "preview", "export.preview")
}

func runExport(ctx context.Context, cfg *config.Config, url string, out io.Writer) error {
	logger := observability.GetLogger()

	exp, err := exporter.New(cfg, logger, exporter.WithPreviewWriter(out))
	if err != nil {
		return err
	}

	tab, cleanup, err := openTab(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer cleanup()

	res, err := exp.Export(ctx, tab, url)
	if err != nil {
		return err
	}
	return printFiles(out, res)
}

func printFiles(out io.Writer, res *exporter.Result) error {
	for _, path := range res.Files {
		if _, err := fmt.Fprintln(out, path); err != nil {
			return err
		}
	}
	return nil
}
