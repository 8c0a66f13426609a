package pattern

import (
	"context"
	"fmt"
	"sort"

	"github.com/oprina-ai/memcore/pkg/types"
)

const (
	// suggestionFloor is the minimum confidence before a pattern is allowed
	// to surface user-visible suggestions.
	suggestionFloor = 0.3

	// settingsFloor is the stricter bar for silently adapting response
	// formatting; a bad suggestion is ignorable, a bad default is not.
	settingsFloor = 0.5

	maxSuggestions = 5
)

// GetSmartSuggestions derives proactive suggestions from the user's learned
// patterns, ranked by confidence. evCtx carries the caller's situational
// hints (current_hour, pending_email_count).
func (e *Engine) GetSmartSuggestions(ctx context.Context, userID string, evCtx map[string]any) ([]types.Suggestion, error) {
	patterns, err := e.store.ListPatterns(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []types.Suggestion
	for _, p := range patterns {
		if p.Confidence < suggestionFloor {
			continue
		}
		if s, ok := suggestionFrom(p, evCtx); ok {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

func suggestionFrom(p *types.Pattern, evCtx map[string]any) (types.Suggestion, bool) {
	switch p.Type {
	case types.PatternEmailFrequency:
		peak, ok := lookupFloat(p.Data, "peak_hour")
		if !ok {
			return types.Suggestion{}, false
		}
		hour, ok := lookupFloat(evCtx, "current_hour")
		if !ok || hour != peak {
			return types.Suggestion{}, false
		}
		msg := "You usually check email around this time."
		if pending, ok := lookupFloat(evCtx, "pending_email_count"); ok && pending > 0 {
			msg = fmt.Sprintf("You usually check email around this time; you have %d unread.", int(pending))
		}
		return types.Suggestion{
			Type:       "email_check",
			Message:    msg,
			Confidence: p.Confidence,
			Action:     "check_email",
		}, true

	case types.PatternVoiceCommands:
		cmd, _ := p.Data["most_frequent"].(string)
		if cmd == "" {
			return types.Suggestion{}, false
		}
		return types.Suggestion{
			Type:       "voice_shortcut",
			Message:    fmt.Sprintf("Your most used command is %q.", cmd),
			Confidence: p.Confidence,
			Action:     cmd,
		}, true

	case types.PatternActionPreference:
		action, _ := p.Data["preferred_action"].(string)
		if action == "" || action == "none" {
			return types.Suggestion{}, false
		}
		return types.Suggestion{
			Type:       "email_action",
			Message:    fmt.Sprintf("You usually %s emails after reading them.", action),
			Confidence: p.Confidence,
			Action:     action,
		}, true

	case types.PatternSummaryPreference:
		level, _ := p.Data["preferred_detail"].(string)
		if level == "" {
			return types.Suggestion{}, false
		}
		return types.Suggestion{
			Type:       "summary_style",
			Message:    fmt.Sprintf("Summaries will default to %s detail.", level),
			Confidence: p.Confidence,
			Action:     "set_detail_" + level,
		}, true
	}
	return types.Suggestion{}, false
}

// GetAdaptiveResponseSettings returns response formatting defaults adjusted
// by learned style patterns. Patterns below the confidence bar leave the
// defaults untouched.
func (e *Engine) GetAdaptiveResponseSettings(ctx context.Context, userID string) (types.ResponseSettings, error) {
	settings := types.DefaultResponseSettings()

	style, err := e.store.GetPattern(ctx, userID, types.PatternResponseStyle)
	if err != nil {
		return settings, err
	}
	if style != nil && style.Confidence >= settingsFloor {
		if format, ok := style.Data["preferred_format"].(string); ok && format != "" {
			settings.Format = format
		}
		if avg, ok := lookupFloat(style.Data, "avg_length"); ok {
			switch {
			case avg < 120:
				settings.Verbosity = "brief"
			case avg > 600:
				settings.Verbosity = "detailed"
			}
		}
	}

	summary, err := e.store.GetPattern(ctx, userID, types.PatternSummaryPreference)
	if err != nil {
		return settings, err
	}
	if summary != nil && summary.Confidence >= settingsFloor {
		if level, ok := summary.Data["preferred_detail"].(string); ok && level != "" {
			settings.DetailLevel = level
			if level == "brief" {
				settings.MaxSummaryLen = 200
			}
		}
	}

	return settings, nil
}
