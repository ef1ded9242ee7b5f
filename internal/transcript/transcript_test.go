package transcript

import (
	stdjson "encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDropsEmptyMessages(t *testing.T) {
	tr := New("", "")
	assert.True(t, tr.Add(Message{Index: 0, Role: RoleHuman, Text: "  hello \n"}))
	assert.False(t, tr.Add(Message{Index: 1, Role: RoleAssistant, Text: " \n\t"}))

	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "hello", tr.Messages[0].Text)
}

func TestMergeKeepsDocumentOrder(t *testing.T) {
	tr := New("t", "")
	tr.Add(Message{Index: 0, Role: RoleHuman, Text: "q1", Source: SourceStatic})
	tr.Add(Message{Index: 2, Role: RoleHuman, Text: "q2", Source: SourceStatic})

	tr.Merge(
		Message{Index: 3, Role: RoleAssistant, Text: "a2", Source: SourceInteractive},
		Message{Index: 1, Role: RoleAssistant, Text: "a1", Source: SourceInteractive},
		Message{Index: 2, Role: RoleHuman, Text: "duplicate", Source: SourceInteractive},
		Message{Index: 4, Role: RoleAssistant, Text: "   ", Source: SourceInteractive},
	)

	want := []Message{
		{Index: 0, Role: RoleHuman, Text: "q1", Source: SourceStatic},
		{Index: 1, Role: RoleAssistant, Text: "a1", Source: SourceInteractive},
		{Index: 2, Role: RoleHuman, Text: "q2", Source: SourceStatic},
		{Index: 3, Role: RoleAssistant, Text: "a2", Source: SourceInteractive},
	}
	if diff := cmp.Diff(want, tr.Messages); diff != "" {
		t.Errorf("merged messages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, tr.Count(RoleHuman))
	assert.Equal(t, 2, tr.Count(RoleAssistant))
}

func TestMarkdown(t *testing.T) {
	t.Run("renders headings in order", func(t *testing.T) {
		tr := New("", "")
		tr.Add(Message{Index: 0, Role: RoleHuman, Text: "What is Go?"})
		tr.Add(Message{Index: 1, Role: RoleAssistant, Text: "A language.\n\n- simple\n- fast"})

		want := "# Conversation with Claude\n\n" +
			"## Human:\n\nWhat is Go?\n\n" +
			"## Claude:\n\nA language.\n\n- simple\n- fast\n"
		assert.Equal(t, want, tr.Markdown())
	})

	t.Run("uses detected title", func(t *testing.T) {
		tr := New("Debugging a race", "")
		tr.Add(Message{Role: RoleHuman, Text: "hi"})
		assert.True(t, strings.HasPrefix(tr.Markdown(), "# Debugging a race\n\n"))
	})

	t.Run("explicit notice when nothing captured", func(t *testing.T) {
		tr := New("", "")
		assert.Equal(t, "# Conversation with Claude\n\n"+NoMessagesNotice+"\n", tr.Markdown())
		assert.ErrorIs(t, tr.Validate(), ErrNoMessages)
	})
}

func TestJSON(t *testing.T) {
	tr := New("Title", "https://claude.ai/chat/abc")
	tr.Add(Message{Index: 0, Role: RoleHuman, Text: "hi", Source: SourceStatic})

	out, err := tr.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, stdjson.Unmarshal(out, &decoded))
	assert.Equal(t, "Title", decoded["title"])
	assert.Equal(t, tr.RunID, decoded["run_id"])
	msgs := decoded["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "human", msgs[0].(map[string]interface{})["role"])
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title string
		ext   string
		want  string
	}{
		{"", ".md", "claude_conversation.md"},
		{"Conversation with Claude", ".md", "claude_conversation.md"},
		{"Debugging a Race: Part 2!", ".md", "debugging_a_race_part_2.md"},
		{"  ---  ", "md", "claude_conversation.md"},
		{"日本語のタイトル", ".md", "claude_conversation.md"},
		{"Report", "json", "report.json"},
		{strings.Repeat("ab ", 60), ".md", strings.TrimRight(strings.Repeat("ab_", 27)[:80], "_") + ".md"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.title, tt.ext))
		})
	}
}
