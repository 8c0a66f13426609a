package pattern

import (
	"context"
	"log/slog"
	"time"

	"github.com/oprina-ai/memcore/pkg/types"
)

const (
	// maxHistory caps each pattern's rolling observation history.
	maxHistory = 100

	// maxConfidence leaves headroom so a pattern never reads as certainty.
	maxConfidence = 0.95
)

// Engine aggregates learning events into pattern records.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a pattern engine over the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// routine is one pattern-update step: it folds an observation into the
// pattern's data and returns the stability of the derived statistic in [0,1].
type routine struct {
	patternType types.PatternType
	update      func(data map[string]any, eventData, evCtx map[string]any, now time.Time) float64
}

func (e *Engine) routineFor(eventType string) (routine, bool) {
	switch eventType {
	case types.EventEmailCheck:
		return routine{types.PatternEmailFrequency, updateEmailFrequency}, true
	case types.EventVoiceCommand:
		return routine{types.PatternVoiceCommands, updateVoiceCommands}, true
	case types.EventEmailAction:
		return routine{types.PatternActionPreference, updateActionPreference}, true
	case types.EventResponseGenerated:
		return routine{types.PatternResponseStyle, updateResponseStyle}, true
	case types.EventSummaryRequested:
		return routine{types.PatternSummaryPreference, updateSummaryPreference}, true
	default:
		return routine{}, false
	}
}

// LearnFromEvent folds one observation into the matching pattern. It returns
// false instead of an error on every failure path; pattern learning must
// never fail or block the caller's primary operation.
func (e *Engine) LearnFromEvent(ctx context.Context, userID, eventType string, eventData, evCtx map[string]any) bool {
	r, ok := e.routineFor(eventType)
	if !ok {
		e.logger.Debug("unknown learning event type", "event_type", eventType)
		return false
	}

	p, err := e.store.GetPattern(ctx, userID, r.patternType)
	if err != nil {
		e.logger.Warn("pattern load failed", "user_id", userID, "pattern_type", r.patternType, "error", err)
		return false
	}
	if p == nil {
		p = &types.Pattern{
			UserID: userID,
			Type:   r.patternType,
			Data:   map[string]any{},
		}
	}
	if p.Data == nil {
		p.Data = map[string]any{}
	}

	now := e.now().UTC()
	stability := r.update(p.Data, eventData, evCtx, now)

	// Confidence approaches the statistic's stability as observations
	// accumulate, and is clamped to never decrease. Only an explicit reset
	// lowers it.
	n := asFloat(p.Data["observations"])
	candidate := stability * n / (n + 5)
	if candidate > maxConfidence {
		candidate = maxConfidence
	}
	if candidate > p.Confidence {
		p.Confidence = candidate
	}
	p.LastUpdated = now

	if err := e.store.UpsertPattern(ctx, p); err != nil {
		e.logger.Warn("pattern store failed", "user_id", userID, "pattern_type", r.patternType, "error", err)
		return false
	}
	return true
}

// GetUserPatterns returns the user's patterns keyed by type, optionally
// narrowed to one type.
func (e *Engine) GetUserPatterns(ctx context.Context, userID string, pt types.PatternType) (map[string]*types.Pattern, error) {
	out := make(map[string]*types.Pattern)
	if pt != "" {
		p, err := e.store.GetPattern(ctx, userID, pt)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[string(pt)] = p
		}
		return out, nil
	}

	patterns, err := e.store.ListPatterns(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range patterns {
		out[string(p.Type)] = p
	}
	return out, nil
}

// ResetPattern is the only path that lowers confidence: it removes the
// record entirely.
func (e *Engine) ResetPattern(ctx context.Context, userID string, pt types.PatternType) error {
	e.logger.Info("pattern reset", "user_id", userID, "pattern_type", pt)
	return e.store.DeletePattern(ctx, userID, pt)
}

// Ping checks the underlying store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// --- update routines ---

// updateEmailFrequency tracks the hour-of-day of email checks and scores how
// concentrated they are around the modal hour.
func updateEmailFrequency(data, eventData, evCtx map[string]any, now time.Time) float64 {
	hour := float64(now.Hour())
	if h, ok := lookupFloat(eventData, "hour"); ok {
		hour = h
	} else if h, ok := lookupFloat(evCtx, "current_hour"); ok {
		hour = h
	}

	hist := appendHistory(data, "hours", hour)
	peak, share := modalValue(hist)
	data["peak_hour"] = peak
	data["consistency"] = share
	bumpObservations(data)
	return share
}

// updateVoiceCommands counts command usage and tracks the most frequent one.
func updateVoiceCommands(data, eventData, _ map[string]any, _ time.Time) float64 {
	cmd, _ := eventData["command"].(string)
	if cmd == "" {
		cmd = "unknown"
	}
	top, share := bumpCount(data, "commands", cmd)
	data["most_frequent"] = top
	bumpObservations(data)
	return share
}

// updateActionPreference counts post-read actions (archive, reply, delete).
func updateActionPreference(data, eventData, _ map[string]any, _ time.Time) float64 {
	action, _ := eventData["action"].(string)
	if action == "" {
		action = "none"
	}
	top, share := bumpCount(data, "actions", action)
	data["preferred_action"] = top
	bumpObservations(data)
	return share
}

// updateResponseStyle keeps a running average response length and the
// dominant format.
func updateResponseStyle(data, eventData, _ map[string]any, _ time.Time) float64 {
	n := asFloat(data["samples"])
	avg := asFloat(data["avg_length"])
	if length, ok := lookupFloat(eventData, "length"); ok {
		avg = (avg*n + length) / (n + 1)
	}
	data["samples"] = n + 1
	data["avg_length"] = avg

	format, _ := eventData["format"].(string)
	if format == "" {
		format = "plain"
	}
	top, share := bumpCount(data, "formats", format)
	data["preferred_format"] = top
	bumpObservations(data)
	return share
}

// updateSummaryPreference counts requested detail levels.
func updateSummaryPreference(data, eventData, _ map[string]any, _ time.Time) float64 {
	level, _ := eventData["detail_level"].(string)
	if level == "" {
		level = "normal"
	}
	top, share := bumpCount(data, "detail_levels", level)
	data["preferred_detail"] = top
	bumpObservations(data)
	return share
}

// --- data helpers ---
//
// Pattern data lives in JSONB, so numbers come back as float64 and maps as
// map[string]any. Every helper tolerates both fresh in-memory values and
// round-tripped ones.

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func lookupFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch n := m[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func bumpObservations(data map[string]any) {
	data["observations"] = asFloat(data["observations"]) + 1
}

// appendHistory appends v to the rolling history at key, capped at
// maxHistory, and returns the updated slice.
func appendHistory(data map[string]any, key string, v float64) []float64 {
	raw, _ := data[key].([]any)
	hist := make([]float64, 0, len(raw)+1)
	for _, item := range raw {
		hist = append(hist, asFloat(item))
	}
	hist = append(hist, v)
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}

	stored := make([]any, len(hist))
	for i, h := range hist {
		stored[i] = h
	}
	data[key] = stored
	return hist
}

// modalValue returns the most frequent value and its share of observations.
func modalValue(hist []float64) (float64, float64) {
	if len(hist) == 0 {
		return 0, 0
	}
	freq := make(map[float64]int, len(hist))
	var peak float64
	best := 0
	for _, v := range hist {
		freq[v]++
		if freq[v] > best {
			best = freq[v]
			peak = v
		}
	}
	return peak, float64(best) / float64(len(hist))
}

// bumpCount increments the counter at data[key][value] and returns the top
// value and its share.
func bumpCount(data map[string]any, key, value string) (string, float64) {
	counts, _ := data[key].(map[string]any)
	if counts == nil {
		counts = map[string]any{}
	}
	counts[value] = asFloat(counts[value]) + 1
	data[key] = counts

	var (
		top   string
		best  float64
		total float64
	)
	for k, v := range counts {
		n := asFloat(v)
		total += n
		if n > best {
			best = n
			top = k
		}
	}
	if total == 0 {
		return top, 0
	}
	return top, best / total
}
