package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oprina-ai/memcore/pkg/types"
)

func TestExpandDelta_DotPaths(t *testing.T) {
	delta := types.StateTree{
		"agent_states.email_agent.status": "ready",
		"user:name":                       "Sarah",
	}

	got := ExpandDelta(delta)

	assert.Equal(t, types.StateTree{
		"agent_states": map[string]any{
			"email_agent": map[string]any{
				"status": "ready",
			},
		},
		"user:name": "Sarah",
	}, got)
}

func TestExpandDelta_SiblingPathsShareSubtree(t *testing.T) {
	delta := types.StateTree{
		"agent_states.email_agent.status":    "busy",
		"agent_states.calendar_agent.status": "idle",
	}

	got := ExpandDelta(delta)

	agents, ok := got["agent_states"].(map[string]any)
	if !ok {
		t.Fatalf("agent_states = %T", got["agent_states"])
	}
	if len(agents) != 2 {
		t.Errorf("sibling dot-paths must land in one subtree, got %v", agents)
	}
}

func TestMerge_NestedMapsMergeScalarReplaces(t *testing.T) {
	dst := types.StateTree{
		"email:context": map[string]any{
			"last_query": "unread",
			"count":      3,
		},
		"user:tz": "UTC",
	}
	src := types.StateTree{
		"email:context": map[string]any{
			"count": 5,
		},
	}

	got := Merge(dst, src)

	emailCtx := got["email:context"].(map[string]any)
	assert.Equal(t, "unread", emailCtx["last_query"], "untouched sibling key must survive")
	assert.Equal(t, 5, emailCtx["count"], "leaf scalar replaces wholesale")
	assert.Equal(t, "UTC", got["user:tz"])
}

func TestMerge_ListsReplaceWholesale(t *testing.T) {
	dst := types.StateTree{"conversation_history": []any{"a", "b"}}
	src := types.StateTree{"conversation_history": []any{"c"}}

	got := Merge(dst, src)

	assert.Equal(t, []any{"c"}, got["conversation_history"])
}

func TestApplyDelta_IndependentAgentStates(t *testing.T) {
	state := NewInitialState()

	state = ApplyDelta(state, types.StateTree{
		"agent_states.email_agent": map[string]any{"status": "active"},
	})
	state = ApplyDelta(state, types.StateTree{
		"agent_states.calendar_agent": map[string]any{"status": "waiting"},
	})

	agents := state["agent_states"].(map[string]any)
	email := agents["email_agent"].(map[string]any)
	calendar := agents["calendar_agent"].(map[string]any)
	assert.Equal(t, "active", email["status"])
	assert.Equal(t, "waiting", calendar["status"])
}

func TestApplyDelta_SameLeafLastWriteWins(t *testing.T) {
	state := NewInitialState()

	state = ApplyDelta(state, types.StateTree{"agent_states.email_agent.status": "first"})
	state = ApplyDelta(state, types.StateTree{"agent_states.email_agent.status": "second"})

	agents := state["agent_states"].(map[string]any)
	email := agents["email_agent"].(map[string]any)
	assert.Equal(t, "second", email["status"])
}

func TestCloneTree_Independence(t *testing.T) {
	orig := types.StateTree{
		"agent_states": map[string]any{"email_agent": map[string]any{"n": 1}},
	}

	clone := CloneTree(orig)
	clone["agent_states"].(map[string]any)["email_agent"].(map[string]any)["n"] = 99

	n := orig["agent_states"].(map[string]any)["email_agent"].(map[string]any)["n"]
	assert.Equal(t, 1, n, "mutating the clone must not touch the original")
}
