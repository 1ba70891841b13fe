package eventloop

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/message"
)

func TestCleanOrphans_RemovesEmptyInputOrphanAmongOtherBlocks(t *testing.T) {
	conv := []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "x"}}},
		{Role: message.RoleAssistant, Content: []message.ContentBlock{
			message.ToolUseBlock{ID: "t1", Name: "f", Input: json.RawMessage("{}")},
			message.TextBlock{Text: "noted"},
		}},
	}

	out := cleanOrphans(conv)

	require.Equal(t, []message.ContentBlock{message.TextBlock{Text: "noted"}}, out[1].Content)
}

func TestCleanOrphans_ReplacesSoleOrphanWithCancelledNotice(t *testing.T) {
	conv := []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "x"}}},
		{Role: message.RoleAssistant, Content: []message.ContentBlock{
			message.ToolUseBlock{ID: "t1", Name: "f", Input: json.RawMessage("{}")},
		}},
	}

	out := cleanOrphans(conv)

	require.Equal(t, []message.ContentBlock{message.TextBlock{Text: "[Attempted to use f, but operation was canceled]"}}, out[1].Content)
}

func TestCleanOrphans_LeavesNonEmptyInputOrphanInPlace(t *testing.T) {
	conv := []message.Message{
		{Role: message.RoleAssistant, Content: []message.ContentBlock{
			message.ToolUseBlock{ID: "t1", Name: "f", Input: json.RawMessage(`{"a":1}`)},
		}},
	}

	out := cleanOrphans(conv)

	require.Equal(t, conv[0].Content, out[0].Content)
}

func TestCleanOrphans_LeavesMatchedToolUseInPlace(t *testing.T) {
	conv := []message.Message{
		{Role: message.RoleAssistant, Content: []message.ContentBlock{
			message.ToolUseBlock{ID: "t1", Name: "f", Input: json.RawMessage("{}")},
		}},
		{Role: message.RoleUser, Content: []message.ContentBlock{
			message.ToolResultBlock{ToolUseID: "t1", Status: message.StatusSuccess},
		}},
	}

	out := cleanOrphans(conv)

	require.Equal(t, conv[0].Content, out[0].Content)
}
