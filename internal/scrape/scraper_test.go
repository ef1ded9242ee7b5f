package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chatscribe/internal/markdown"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

const legacyPage = `<html><head><title>Fixing Go tests - Claude</title></head><body>
<div class="font-user-message"><p>How do I run tests?</p></div>
<div class="font-claude-message"><div class="grid-cols-1"><p>Run:</p><div>bash</div><pre><code class="language-bash">go test ./...</code></pre></div><div>Copy</div></div>
<div class="font-user-message"><p>   </p></div>
</body></html>`

func TestScrapeLegacyPage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	res, err := Scrape(strings.NewReader(legacyPage), Options{
		URL:    "https://claude.ai/chat/abc",
		Logger: zap.New(core),
	})
	require.NoError(t, err)

	assert.Equal(t, "legacy-font", res.Profile.Name)
	assert.Equal(t, 3, res.Elements)

	tr := res.Transcript
	assert.Equal(t, "Fixing Go tests", tr.Title)
	assert.Equal(t, "https://claude.ai/chat/abc", tr.URL)
	require.Len(t, tr.Messages, 2)

	assert.Equal(t, transcript.Message{
		Index: 0, Role: transcript.RoleHuman, Text: "How do I run tests?", Source: transcript.SourceStatic,
	}, tr.Messages[0])
	assert.Equal(t, transcript.RoleAssistant, tr.Messages[1].Role)
	assert.Equal(t, 1, tr.Messages[1].Index)
	assert.Equal(t, "Run:\n\n```bash\ngo test ./...\n```", tr.Messages[1].Text, "assistant body comes from the content element only")

	skipped := logs.FilterMessage("Skipping empty message.").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "/html[1]/body[1]/div[3]", skipped[0].ContextMap()["xpath"])
}

func TestScrapeTestIDPage(t *testing.T) {
	page := `<html><head><title>Claude</title></head><body>
<button data-testid="chat-menu-trigger">Trip planning</button>
<div data-testid="user-message"><p>Plan a trip</p></div>
<div data-is-streaming="false"><div class="font-claude-response"><div class="grid-cols-1"><ol><li>Pack</li><li>Go</li></ol></div></div></div>
</body></html>`

	res, err := Scrape(strings.NewReader(page), Options{})
	require.NoError(t, err)

	assert.Equal(t, "testid-grid", res.Profile.Name)
	assert.Equal(t, "Trip planning", res.Transcript.Title)
	require.Len(t, res.Transcript.Messages, 2)
	assert.Equal(t, "1. Pack\n2. Go", res.Transcript.Messages[1].Text)
}

func TestScrapeForcedProfile(t *testing.T) {
	_, err := Scrape(strings.NewReader(legacyPage), Options{Profile: "missing"})
	assert.ErrorIs(t, err, selectors.ErrProfileNotFound)

	res, err := Scrape(strings.NewReader(legacyPage), Options{Profile: "testid"})
	require.NoError(t, err)
	assert.Zero(t, res.Transcript.Len(), "forced profile that matches nothing yields an empty transcript")
}

func TestScrapeUnrecognizedPage(t *testing.T) {
	res, err := Scrape(strings.NewReader(`<html><head><title>Other - Claude</title></head><body><p>hi</p></body></html>`), Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Transcript.Len())
	assert.Equal(t, "Other", res.Transcript.Title)
}

func TestScrapeCommonMarkEngine(t *testing.T) {
	res, err := Scrape(strings.NewReader(legacyPage), Options{Converter: markdown.CommonMark{}})
	require.NoError(t, err)
	require.Len(t, res.Transcript.Messages, 2)
	assert.Equal(t, "How do I run tests?", res.Transcript.Messages[0].Text)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		selector string
		expected string
	}{
		{"selector wins", `<title>Doc - Claude</title><h1 class="t">Heading</h1>`, ".t", "Heading"},
		{"selector empty falls back", `<title>Doc - Claude</title><h1 class="t"> </h1>`, ".t", "Doc"},
		{"pipe suffix", `<title>Doc | Claude</title>`, "", "Doc"},
		{"bare site name", `<title>Claude</title>`, "", ""},
		{"no title", `<p>x</p>`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Title(mustDoc(t, tt.page), tt.selector))
		})
	}
}
