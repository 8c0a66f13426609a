package pattern

import (
	"context"
	"log/slog"
	"testing"

	"github.com/oprina-ai/memcore/pkg/types"
)

func seedPattern(t *testing.T, e *Engine, pt types.PatternType, confidence float64, data map[string]any) {
	t.Helper()
	err := e.store.UpsertPattern(context.Background(), &types.Pattern{
		UserID:     "u1",
		Type:       pt,
		Data:       data,
		Confidence: confidence,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", pt, err)
	}
}

func TestSuggestionsRankedByConfidence(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))
	ctx := context.Background()

	seedPattern(t, e, types.PatternVoiceCommands, 0.4, map[string]any{"most_frequent": "read_email"})
	seedPattern(t, e, types.PatternActionPreference, 0.8, map[string]any{"preferred_action": "archive"})
	seedPattern(t, e, types.PatternSummaryPreference, 0.6, map[string]any{"preferred_detail": "brief"})

	got, err := e.GetSmartSuggestions(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Fatalf("suggestions out of order at %d: %v then %v", i, got[i-1].Confidence, got[i].Confidence)
		}
	}
	if got[0].Action != "archive" {
		t.Fatalf("top suggestion action = %q, want archive", got[0].Action)
	}
}

func TestLowConfidencePatternsSuppressed(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))

	seedPattern(t, e, types.PatternVoiceCommands, 0.1, map[string]any{"most_frequent": "read_email"})

	got, err := e.GetSmartSuggestions(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("low-confidence pattern produced suggestions: %v", got)
	}
}

func TestEmailSuggestionNeedsMatchingHour(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))
	ctx := context.Background()

	seedPattern(t, e, types.PatternEmailFrequency, 0.7, map[string]any{"peak_hour": float64(9)})

	got, _ := e.GetSmartSuggestions(ctx, "u1", map[string]any{"current_hour": 15})
	if len(got) != 0 {
		t.Fatalf("off-peak hour produced suggestion: %v", got)
	}

	got, _ = e.GetSmartSuggestions(ctx, "u1", map[string]any{"current_hour": 9, "pending_email_count": 4})
	if len(got) != 1 {
		t.Fatalf("peak hour produced %d suggestions, want 1", len(got))
	}
	if got[0].Action != "check_email" {
		t.Fatalf("action = %q, want check_email", got[0].Action)
	}
}

func TestSuggestionsCappedAtFive(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))

	seedPattern(t, e, types.PatternEmailFrequency, 0.9, map[string]any{"peak_hour": float64(9)})
	seedPattern(t, e, types.PatternVoiceCommands, 0.8, map[string]any{"most_frequent": "read_email"})
	seedPattern(t, e, types.PatternActionPreference, 0.7, map[string]any{"preferred_action": "archive"})
	seedPattern(t, e, types.PatternSummaryPreference, 0.6, map[string]any{"preferred_detail": "brief"})
	seedPattern(t, e, types.PatternResponseStyle, 0.5, map[string]any{"preferred_format": "bullets"})

	got, err := e.GetSmartSuggestions(context.Background(), "u1", map[string]any{"current_hour": 9})
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) > maxSuggestions {
		t.Fatalf("got %d suggestions, cap is %d", len(got), maxSuggestions)
	}
}

func TestAdaptiveSettingsDefaultsWhenUnlearned(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))

	got, err := e.GetAdaptiveResponseSettings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got != types.DefaultResponseSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

func TestAdaptiveSettingsFromPatterns(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))

	seedPattern(t, e, types.PatternResponseStyle, 0.7, map[string]any{
		"preferred_format": "bullets",
		"avg_length":       float64(90),
	})
	seedPattern(t, e, types.PatternSummaryPreference, 0.7, map[string]any{
		"preferred_detail": "brief",
	})

	got, err := e.GetAdaptiveResponseSettings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got.Format != "bullets" {
		t.Fatalf("format = %q, want bullets", got.Format)
	}
	if got.Verbosity != "brief" {
		t.Fatalf("verbosity = %q, want brief", got.Verbosity)
	}
	if got.DetailLevel != "brief" {
		t.Fatalf("detail level = %q, want brief", got.DetailLevel)
	}
	if got.MaxSummaryLen != 200 {
		t.Fatalf("max summary len = %d, want 200", got.MaxSummaryLen)
	}
}

func TestAdaptiveSettingsIgnoreLowConfidence(t *testing.T) {
	e := NewEngine(NewMemoryStore(), slog.New(slog.DiscardHandler))

	seedPattern(t, e, types.PatternResponseStyle, 0.2, map[string]any{
		"preferred_format": "bullets",
	})

	got, err := e.GetAdaptiveResponseSettings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got != types.DefaultResponseSettings() {
		t.Fatalf("low-confidence pattern changed settings: %+v", got)
	}
}
