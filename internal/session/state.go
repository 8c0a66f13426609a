package session

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/pkg/types"
)

// PathSeparator splits dot-delimited state keys into nested structure, e.g.
// "agent_states.email_agent.status".
const PathSeparator = "."

// ExpandDelta rewrites dot-path keys into nested maps so a flat delta like
// {"agent_states.email_agent": {...}} merges under the existing agent_states
// subtree instead of clobbering a sibling agent's state.
func ExpandDelta(delta types.StateTree) types.StateTree {
	out := make(types.StateTree, len(delta))
	for key, value := range delta {
		if nested, ok := value.(map[string]any); ok {
			value = ExpandDelta(nested)
		}
		if !strings.Contains(key, PathSeparator) {
			out[key] = mergeInto(out[key], value)
			continue
		}

		parts := strings.Split(key, PathSeparator)
		leaf := types.StateTree{parts[len(parts)-1]: value}
		for i := len(parts) - 2; i >= 1; i-- {
			leaf = types.StateTree{parts[i]: leaf}
		}
		out[parts[0]] = mergeInto(out[parts[0]], leaf)
	}
	return out
}

// mergeInto combines an expanded value with whatever an earlier key in the
// same delta already placed at this slot.
func mergeInto(existing, value any) any {
	em, eok := existing.(map[string]any)
	vm, vok := value.(map[string]any)
	if eok && vok {
		return Merge(em, vm)
	}
	return value
}

// Merge applies src onto dst recursively: nested maps merge key by key,
// scalars and lists replace wholesale at the leaf. dst is mutated and
// returned; a nil dst allocates.
func Merge(dst, src types.StateTree) types.StateTree {
	if dst == nil {
		dst = make(types.StateTree, len(src))
	}
	for key, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[key].(map[string]any); ok {
				dst[key] = Merge(dm, sm)
				continue
			}
			dst[key] = Merge(nil, sm)
			continue
		}
		dst[key] = sv
	}
	return dst
}

// ApplyDelta expands and merges a caller-supplied delta into state,
// returning the updated tree.
func ApplyDelta(state, delta types.StateTree) types.StateTree {
	return Merge(state, ExpandDelta(delta))
}

// CloneTree deep-copies a state tree through its JSON representation, the
// same shape it takes on the wire and in JSONB columns. Returns an empty
// tree when marshaling fails; state trees are JSON-safe by construction.
func CloneTree(state types.StateTree) types.StateTree {
	if state == nil {
		return types.StateTree{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return types.StateTree{}
	}
	var out types.StateTree
	if err := json.Unmarshal(data, &out); err != nil {
		return types.StateTree{}
	}
	return out
}

// NewInitialState returns the tree a session starts with.
func NewInitialState() types.StateTree {
	return types.StateTree{
		types.StateKeyAgentStates:         map[string]any{},
		types.StateKeyConversationHistory: []any{},
		types.StateKeySessionMetadata: map[string]any{
			"version": "1.0",
		},
	}
}
