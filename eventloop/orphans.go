package eventloop

import (
	"fmt"
	"strings"

	"github.com/agentcore/agentcore/message"
)

// cleanOrphans walks conversation and removes tool_use blocks whose input is
// empty and that have no matching tool_result, applying fixes in reverse
// positional order so earlier fixes never shift the indices a later fix
// depends on. This is distinct from streamassembler.Preflight's blank-text
// hygiene: orphan cleanup reacts to a prior cycle's incomplete tool_use (for
// example, one left behind by a cancelled run), not to the model's own
// blank-text output.
//
// Only empty-input orphans are cleaned; a tool_use with a non-empty input
// but no matching result is left in place, preserving documented behavior.
func cleanOrphans(conversation []message.Message) []message.Message {
	out := make([]message.Message, len(conversation))
	copy(out, conversation)

	resultIDs := make(map[string]bool)
	for _, msg := range out {
		for _, blk := range msg.Content {
			if tr, ok := blk.(message.ToolResultBlock); ok {
				resultIDs[tr.ToolUseID] = true
			}
		}
	}

	for i := len(out) - 1; i >= 0; i-- {
		msg := out[i]
		if msg.Role != message.RoleAssistant {
			continue
		}

		if only, ok := onlyOrphanToolUse(msg.Content, resultIDs); ok {
			out[i].Content = []message.ContentBlock{
				message.TextBlock{Text: fmt.Sprintf("[Attempted to use %s, but operation was canceled]", only.Name)},
			}
			continue
		}

		next := make([]message.ContentBlock, 0, len(msg.Content))
		changed := false
		for _, blk := range msg.Content {
			if tu, ok := blk.(message.ToolUseBlock); ok && isEmptyInput(tu.Input) && !resultIDs[tu.ID] {
				changed = true
				continue
			}
			next = append(next, blk)
		}
		if changed {
			out[i].Content = next
		}
	}

	return out
}

// onlyOrphanToolUse reports whether content is exactly one empty-input,
// unmatched tool_use block.
func onlyOrphanToolUse(content []message.ContentBlock, resultIDs map[string]bool) (message.ToolUseBlock, bool) {
	if len(content) != 1 {
		return message.ToolUseBlock{}, false
	}
	tu, ok := content[0].(message.ToolUseBlock)
	if !ok || !isEmptyInput(tu.Input) || resultIDs[tu.ID] {
		return message.ToolUseBlock{}, false
	}
	return tu, true
}

func isEmptyInput(input []byte) bool {
	trimmed := strings.TrimSpace(string(input))
	return trimmed == "" || trimmed == "{}"
}
