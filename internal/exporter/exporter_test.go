package exporter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/interactive"
	"github.com/xkilldash9x/chatscribe/internal/markdown"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

const staticPage = `<html><head><title>Fixing Go tests - Claude</title></head><body>
<div class="font-user-message"><p>How do I run tests?</p></div>
<div class="font-claude-message"><div class="grid-cols-1"><p>Use <code>go test</code>.</p></div></div>
</body></html>`

// Messages exist but their bodies render nothing statically.
const hollowPage = `<html><head><title>Claude</title></head><body>
<div data-testid="user-message"></div>
<div data-is-streaming="false"><div class="font-claude-response"></div></div>
</body></html>`

type fakeClipboard struct{ *interactive.Captures }

func (f *fakeClipboard) Restore(ctx context.Context) error { return nil }

// fakeBrowser serves a fixed snapshot and answers the interactive primitives
// from canned data.
type fakeBrowser struct {
	html        string
	navigated   []string
	navErr      error
	snapshotErr error

	refs   []interactive.MessageRef
	inputs map[int]string
	copies []string

	editing int
	clip    *fakeClipboard
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.navigated = append(b.navigated, url)
	return b.navErr
}

func (b *fakeBrowser) CurrentURL(ctx context.Context) (string, error) {
	if len(b.navigated) == 0 {
		return "", errors.New("no page")
	}
	return b.navigated[len(b.navigated)-1], nil
}

func (b *fakeBrowser) WaitForSelector(ctx context.Context, selector string) error { return nil }

func (b *fakeBrowser) Snapshot(ctx context.Context) (string, error) {
	return b.html, b.snapshotErr
}

func (b *fakeBrowser) Messages(ctx context.Context, profile selectors.Profile) ([]interactive.MessageRef, error) {
	return b.refs, nil
}

func (b *fakeBrowser) Hover(ctx context.Context, ref interactive.MessageRef) error { return nil }
func (b *fakeBrowser) Unhover(ctx context.Context, ref interactive.MessageRef) error { return nil }

func (b *fakeBrowser) ClickButtonByText(ctx context.Context, ref interactive.MessageRef, texts []string) error {
	b.editing = ref.Index
	return nil
}

func (b *fakeBrowser) ReadInput(ctx context.Context, selector string) (string, error) {
	return b.inputs[b.editing], nil
}

func (b *fakeBrowser) PressEscape(ctx context.Context) error { return nil }

func (b *fakeBrowser) InstallClipboardInterceptor(ctx context.Context) (interactive.Interceptor, error) {
	b.clip = &fakeClipboard{Captures: interactive.NewCaptures()}
	return b.clip, nil
}

func (b *fakeBrowser) ClickCopyButtons(ctx context.Context, texts []string, delay time.Duration) (int, error) {
	for _, c := range b.copies {
		b.clip.Add(c)
	}
	return len(b.copies), nil
}

func (b *fakeBrowser) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Export.OutputDir = t.TempDir()
	cfg.Interaction = config.InteractionConfig{CaptureWait: time.Second}
	return cfg
}

func newTestExporter(t *testing.T, cfg *config.Config, opts ...Option) *Exporter {
	t.Helper()
	e, err := New(cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExport_Static(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Format = config.FormatBoth
	page := &fakeBrowser{html: staticPage}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "https://claude.ai/chat/1")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://claude.ai/chat/1"}, page.navigated)
	assert.Equal(t, StrategyStatic, res.Strategy)
	assert.Equal(t, "legacy-font", res.Profile)
	assert.Equal(t, "https://claude.ai/chat/1", res.Transcript.URL)

	mdPath := filepath.Join(cfg.Export.OutputDir, "fixing_go_tests.md")
	jsonPath := filepath.Join(cfg.Export.OutputDir, "fixing_go_tests.json")
	assert.Equal(t, []string{mdPath, jsonPath}, res.Files)

	expected := "# Fixing Go tests\n\n" +
		"## Human:\n\nHow do I run tests?\n\n" +
		"## Claude:\n\nUse `go test`.\n"
	assert.Equal(t, expected, readFile(t, mdPath))
	assert.Contains(t, readFile(t, jsonPath), `"role": "assistant"`)
}

func TestExport_AutoFallsBackToInteractive(t *testing.T) {
	cfg := testConfig(t)
	page := &fakeBrowser{
		html: hollowPage,
		refs: []interactive.MessageRef{
			{Index: 0, Role: transcript.RoleHuman},
			{Index: 1, Role: transcript.RoleAssistant},
		},
		inputs: map[int]string{0: "raw question"},
		copies: []string{"copied answer"},
	}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "")
	require.NoError(t, err)

	assert.Equal(t, StrategyInteractive, res.Strategy)
	assert.Equal(t, "testid-grid", res.Profile)
	require.Len(t, res.Transcript.Messages, 2)
	assert.Equal(t, transcript.SourceInteractive, res.Transcript.Messages[0].Source)

	md := readFile(t, filepath.Join(cfg.Export.OutputDir, transcript.DefaultFileName))
	assert.Contains(t, md, "## Human:\n\nraw question\n\n## Claude:\n\ncopied answer\n")
}

func TestExport_StaticModeNeverInteracts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Mode = config.ModeStatic
	page := &fakeBrowser{html: hollowPage, refs: []interactive.MessageRef{{Index: 0, Role: transcript.RoleHuman}}}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "")
	require.NoError(t, err)

	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Nil(t, page.clip)
	md := readFile(t, res.Files[0])
	assert.Equal(t, "# Conversation with Claude\n\n"+transcript.NoMessagesNotice+"\n", md)
	assert.Equal(t, transcript.DefaultFileName, filepath.Base(res.Files[0]))
}

func TestExport_InteractiveModePrefersInteractiveText(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Mode = config.ModeInteractive
	page := &fakeBrowser{
		html: staticPage,
		refs: []interactive.MessageRef{
			{Index: 0, Role: transcript.RoleHuman},
			{Index: 1, Role: transcript.RoleAssistant},
		},
		inputs: map[int]string{0: "typed text"},
		copies: []string{"plain answer"},
	}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "")
	require.NoError(t, err)

	require.Len(t, res.Transcript.Messages, 2)
	assert.Equal(t, "typed text", res.Transcript.Messages[0].Text)
	assert.Equal(t, "plain answer", res.Transcript.Messages[1].Text)
	assert.Equal(t, "Fixing Go tests", res.Transcript.Title, "title still comes from the snapshot")
}

func TestExport_InteractiveModeKeepsStaticTextForMissedMessages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Mode = config.ModeInteractive
	cfg.Interaction.CaptureWait = 10 * time.Millisecond
	page := &fakeBrowser{
		html: staticPage,
		refs: []interactive.MessageRef{
			{Index: 0, Role: transcript.RoleHuman},
			{Index: 1, Role: transcript.RoleAssistant},
		},
		inputs: map[int]string{0: "typed text"},
	}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "")
	require.NoError(t, err)

	require.Len(t, res.Transcript.Messages, 2)
	assert.Equal(t, "typed text", res.Transcript.Messages[0].Text)
	assert.Equal(t, transcript.SourceInteractive, res.Transcript.Messages[0].Source)
	assert.Equal(t, "Use `go test`.", res.Transcript.Messages[1].Text)
	assert.Equal(t, transcript.SourceStatic, res.Transcript.Messages[1].Source)
	assert.Equal(t, StrategyInteractive, res.Strategy)
}

func TestExport_BestEffortOnPageFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Mode = config.ModeStatic
	page := &fakeBrowser{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED"), snapshotErr: errors.New("target closed")}

	res, err := newTestExporter(t, cfg).Export(context.Background(), page, "https://bad.example")
	require.NoError(t, err)
	assert.Zero(t, res.Transcript.Len())
	require.Len(t, res.Files, 1)
}

func TestExport_WriteFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Export.OutputDir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Export.OutputDir = filepath.Join(blocker, "sub")

	_, err := newTestExporter(t, cfg).Export(context.Background(), &fakeBrowser{html: staticPage}, "")
	assert.Error(t, err)
}

func TestExportSnapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.FileName = "notes.md"
	cfg.Export.Format = config.FormatJSON
	cfg.Export.Engine = markdown.EngineCommonMark

	res, err := newTestExporter(t, cfg).ExportSnapshot(bytes.NewBufferString(staticPage), "file:///saved.html")
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(cfg.Export.OutputDir, "notes.json")}, res.Files)
	assert.Equal(t, 2, res.Transcript.Len())
}

func TestExport_Preview(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Preview = true
	var out bytes.Buffer

	_, err := newTestExporter(t, cfg, WithPreviewWriter(&out), WithPreviewStyle("notty")).ExportSnapshot(bytes.NewBufferString(staticPage), "")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "How do I run tests?")
}

func TestNew_Validation(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Export.Profile = "nope"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, selectors.ErrProfileNotFound)

	cfg = config.NewDefaultConfig()
	cfg.Export.Engine = "pandoc"
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, markdown.ErrUnknownEngine)
}

func TestWaitSelector(t *testing.T) {
	cfg := config.NewDefaultConfig()
	e := newTestExporter(t, cfg)
	assert.Contains(t, e.waitSelector(), ".font-claude-message")
	assert.Contains(t, e.waitSelector(), "[data-is-streaming] .font-claude-response")

	cfg.Export.Profile = "legacy-font"
	assert.Equal(t, ".font-claude-message, .font-user-message", newTestExporter(t, cfg).waitSelector())
}
