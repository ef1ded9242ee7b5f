// Package exporter runs one export: load the page, extract the conversation
// with the configured strategy and write the transcript files.
package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/interactive"
	"github.com/xkilldash9x/chatscribe/internal/markdown"
	"github.com/xkilldash9x/chatscribe/internal/scrape"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

// Strategy names which extraction produced the messages of a run.
type Strategy string

const (
	StrategyStatic      Strategy = "static"
	StrategyInteractive Strategy = "interactive"
	StrategyNone        Strategy = "none"
)

// Browser is the live tab an export runs against.
type Browser interface {
	interactive.Page
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	WaitForSelector(ctx context.Context, selector string) error
	Snapshot(ctx context.Context) (string, error)
}

// Result summarizes a finished export.
type Result struct {
	Transcript *transcript.Transcript
	Profile    string
	Strategy   Strategy
	Files      []string
}

// Exporter turns a page into transcript files.
type Exporter struct {
	cfg        *config.Config
	logger     *zap.Logger
	profiles   []selectors.Profile
	converter  markdown.Converter
	previewOut io.Writer
	// previewStyle is a glamour standard style name; empty picks one from
	// the terminal.
	previewStyle string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPreviewWriter sets where the rendered preview goes. Defaults to stdout.
func WithPreviewWriter(w io.Writer) Option {
	return func(e *Exporter) { e.previewOut = w }
}

// WithPreviewStyle forces a glamour standard style ("dark", "light",
// "notty", ...) for the preview.
func WithPreviewStyle(style string) Option {
	return func(e *Exporter) { e.previewStyle = style }
}

// New builds an exporter from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Exporter, error) {
	conv, err := markdown.New(cfg.Export.Engine)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		cfg:        cfg,
		logger:     logger.Named("exporter"),
		profiles:   selectors.FromConfig(cfg.Selectors),
		converter:  conv,
		previewOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.Export.Profile != "" {
		if _, err := selectors.Lookup(e.profiles, cfg.Export.Profile); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Profiles returns the selector profiles in effect, oldest first.
func (e *Exporter) Profiles() []selectors.Profile {
	return e.profiles
}

// Export runs the full pipeline against page. url may be empty to export
// whatever the tab already shows. Only failures to write output are returned
// as errors; every other failure is logged and the export continues with
// what it has.
func (e *Exporter) Export(ctx context.Context, page Browser, url string) (*Result, error) {
	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			e.logger.Error("Navigation failed, exporting whatever the tab shows.", zap.String("url", url), zap.Error(err))
		}
	}
	if current, err := page.CurrentURL(ctx); err == nil && current != "" {
		url = current
	}

	if err := page.WaitForSelector(ctx, e.waitSelector()); err != nil {
		e.logger.Warn("No messages appeared on the page.", zap.Error(err))
	}

	res := e.snapshot(ctx, page, url)

	switch {
	case e.cfg.Export.Mode == config.ModeInteractive:
		e.interactive(ctx, page, res, true)
	case e.cfg.Export.Mode == config.ModeAuto && res.Transcript.Len() == 0:
		e.logger.Info("Static extraction found nothing, falling back to interactive capture.")
		e.interactive(ctx, page, res, false)
	}

	if err := e.finish(res); err != nil {
		return res, err
	}
	return res, nil
}

// ExportSnapshot runs the static strategy over saved HTML and writes the
// result.
func (e *Exporter) ExportSnapshot(r io.Reader, url string) (*Result, error) {
	res, err := e.scrape(r, url)
	if err != nil {
		return nil, err
	}
	if err := e.finish(res); err != nil {
		return res, err
	}
	return res, nil
}

// waitSelector matches messages of the forced profile, or of any profile.
func (e *Exporter) waitSelector() string {
	if p, err := selectors.Lookup(e.profiles, e.cfg.Export.Profile); err == nil {
		return p.MessageSelector
	}
	parts := make([]string, 0, len(e.profiles))
	for _, p := range e.profiles {
		parts = append(parts, p.MessageSelector)
	}
	return strings.Join(parts, ", ")
}

func (e *Exporter) snapshot(ctx context.Context, page Browser, url string) *Result {
	html, err := page.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("Failed to snapshot the page.", zap.Error(err))
		return e.emptyResult(url)
	}
	res, err := e.scrape(strings.NewReader(html), url)
	if err != nil {
		e.logger.Warn("Static extraction failed.", zap.Error(err))
		return e.emptyResult(url)
	}
	return res
}

func (e *Exporter) scrape(r io.Reader, url string) (*Result, error) {
	out, err := scrape.Scrape(r, scrape.Options{
		Profile:   e.cfg.Export.Profile,
		Profiles:  e.profiles,
		Converter: e.converter,
		URL:       url,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	strategy := StrategyStatic
	if out.Transcript.Len() == 0 {
		strategy = StrategyNone
	}
	return &Result{Transcript: out.Transcript, Profile: out.Profile.Name, Strategy: strategy}, nil
}

func (e *Exporter) emptyResult(url string) *Result {
	return &Result{Transcript: transcript.New("", url), Strategy: StrategyNone}
}

// interactive runs the interactive strategy. With replace set its text wins
// over the static walk's and static messages only fill the indices it
// missed; otherwise it only fills indices the static walk missed.
func (e *Exporter) interactive(ctx context.Context, page Browser, res *Result, replace bool) {
	profile, err := e.liveProfile(res.Profile)
	if err != nil {
		e.logger.Warn("No selector profile for interactive capture.", zap.Error(err))
		return
	}

	ex := interactive.NewExtractor(page, profile, interactive.TimingFromConfig(e.cfg.Interaction), e.logger)
	msgs, err := ex.Extract(ctx)
	if err != nil {
		e.logger.Warn("Interactive capture ended early.", zap.Error(err))
	}
	if len(msgs) == 0 {
		return
	}

	if replace {
		static := res.Transcript.Messages
		res.Transcript.Messages = []transcript.Message{}
		res.Transcript.Merge(msgs...)
		res.Transcript.Merge(static...)
	} else {
		res.Transcript.Merge(msgs...)
	}
	res.Profile = profile.Name
	res.Strategy = StrategyInteractive
}

// liveProfile picks the profile for the live page: the forced one, the one the
// static walk detected, or the newest.
func (e *Exporter) liveProfile(detected string) (selectors.Profile, error) {
	if e.cfg.Export.Profile != "" {
		return selectors.Lookup(e.profiles, e.cfg.Export.Profile)
	}
	if detected != "" {
		return selectors.Lookup(e.profiles, detected)
	}
	if len(e.profiles) == 0 {
		return selectors.Profile{}, selectors.ErrProfileNotFound
	}
	return e.profiles[len(e.profiles)-1], nil
}

// finish applies the default title, writes the files, renders the preview and
// logs a summary.
func (e *Exporter) finish(res *Result) error {
	t := res.Transcript
	if strings.TrimSpace(t.Title) == "" {
		t.Title = e.cfg.Export.DefaultTitle
	}
	if err := t.Validate(); err != nil {
		e.logger.Warn("Writing an empty transcript.", zap.Error(err))
	}

	files, err := e.write(t)
	res.Files = files
	if err != nil {
		return err
	}

	if e.cfg.Export.Preview {
		e.preview(t)
	}

	e.logger.Info("Export complete.",
		zap.String("title", t.DisplayTitle()),
		zap.String("profile", res.Profile),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("messages", t.Len()),
		zap.Int("human", t.Count(transcript.RoleHuman)),
		zap.Int("assistant", t.Count(transcript.RoleAssistant)),
		zap.Strings("files", files))
	return nil
}

// write stores the transcript in the configured formats under the output
// directory and returns the written paths.
func (e *Exporter) write(t *transcript.Transcript) ([]string, error) {
	dir := e.cfg.Export.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	stem := e.stem(t)
	var files []string
	format := e.cfg.Export.Format

	if format == config.FormatMarkdown || format == config.FormatBoth {
		path := filepath.Join(dir, stem+".md")
		if err := os.WriteFile(path, []byte(t.Markdown()), 0o644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}

	if format == config.FormatJSON || format == config.FormatBoth {
		data, err := t.JSON()
		if err != nil {
			return files, fmt.Errorf("failed to encode transcript: %w", err)
		}
		path := filepath.Join(dir, stem+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// stem is the output file name without extension: the configured name, or
// one derived from the title.
func (e *Exporter) stem(t *transcript.Transcript) string {
	name := e.cfg.Export.FileName
	if name == "" {
		name = transcript.FileName(t.Title, "")
	}
	name = filepath.Base(name)
	switch ext := filepath.Ext(name); strings.ToLower(ext) {
	case ".md", ".json", ".markdown":
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func (e *Exporter) preview(t *transcript.Transcript) {
	style := glamour.WithAutoStyle()
	if e.previewStyle != "" {
		style = glamour.WithStandardStyle(e.previewStyle)
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(80),
	)
	if err != nil {
		e.logger.Warn("Preview renderer unavailable.", zap.Error(err))
		return
	}
	out, err := r.Render(t.Markdown())
	if err != nil {
		e.logger.Warn("Failed to render preview.", zap.Error(err))
		return
	}
	fmt.Fprint(e.previewOut, out)
}
