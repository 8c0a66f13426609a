package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oprina-ai/memcore/internal/cache/local"
	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/session"
	"github.com/oprina-ai/memcore/pkg/cache"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

func newTestCoordinator(t *testing.T, c cache.Cache) *Coordinator {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	co := New(
		session.NewMemoryStore(0),
		history.NewMemoryStore(),
		pattern.NewEngine(pattern.NewMemoryStore(), logger),
		c,
		logger,
		Config{},
	)
	t.Cleanup(co.Close)
	return co
}

// drainLearner closes the coordinator's learner so queued events finish
// before assertions run against pattern state.
func drainLearner(co *Coordinator) {
	co.learner.Close()
}

func TestCreateSessionIdempotent(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	id, err := co.CreateSession(ctx, "u1", "s1")
	if err != nil || id != "s1" {
		t.Fatalf("create: %q %v", id, err)
	}

	if _, err := co.UpdateSessionContext(ctx, "u1", "s1", types.StateTree{"user:name": "Ada"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Recreating must not reset state.
	if _, err := co.CreateSession(ctx, "u1", "s1"); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	sc, err := co.GetSessionContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if sc.State["user:name"] != "Ada" {
		t.Fatalf("state reset on recreate: %v", sc.State)
	}
}

func TestGetSessionContextUnknown(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))

	_, err := co.GetSessionContext(context.Background(), "u1", "missing")
	if !memerrors.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestGetSessionContextReportsSnapshotCached(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")

	// CreateSession warms the snapshot, so the very next read sees it.
	sc, err := co.GetSessionContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !sc.CacheStatus.SessionCached {
		t.Error("snapshot should be cached after create")
	}
}

func TestStoreMessageAppendsBoundedPointerList(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	for i := 0; i < historyPointerCap+5; i++ {
		if _, err := co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "check my email please", nil); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	sc, err := co.GetSessionContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	refs, _ := sc.State[types.StateKeyConversationHistory].([]any)
	if len(refs) != historyPointerCap {
		t.Fatalf("pointer list length = %d, want %d", len(refs), historyPointerCap)
	}
}

func TestStoreMessageAutoTitlesFirstUserMessage(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	if _, err := co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "schedule a meeting with the design team tomorrow", nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	convs, err := co.ListConversations(ctx, "u1", 10, 0)
	if err != nil || len(convs) != 1 {
		t.Fatalf("conversations: %v %v", convs, err)
	}
	if convs[0].Title == history.DefaultTitle || convs[0].Title == "" {
		t.Fatalf("expected derived title, got %q", convs[0].Title)
	}

	// A later message must not retitle.
	title := convs[0].Title
	co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "something completely different", nil)
	convs, _ = co.ListConversations(ctx, "u1", 10, 0)
	if convs[0].Title != title {
		t.Fatalf("title changed from %q to %q", title, convs[0].Title)
	}
}

func TestAutoTitleWaitsForFirstUserMessage(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")

	// Conversations can open with non-user messages; those never title.
	co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeSystem, "voice pipeline connected", nil)
	co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeAgentResponse, "Hi! How can I help?", nil)

	convs, err := co.ListConversations(ctx, "u1", 10, 0)
	if err != nil || len(convs) != 1 {
		t.Fatalf("conversations: %v %v", convs, err)
	}
	if convs[0].Title != history.DefaultTitle {
		t.Fatalf("titled before any user message: %q", convs[0].Title)
	}

	if _, err := co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "Can you check my inbox for urgent items from Sarah?", nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	convs, _ = co.ListConversations(ctx, "u1", 10, 0)
	if convs[0].Title == history.DefaultTitle || convs[0].Title == "" {
		t.Fatalf("first user message did not title the conversation: %q", convs[0].Title)
	}
}

func TestStoreMessageRejectsUnknownType(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	if _, err := co.StoreConversationMessage(ctx, "u1", "s1", "telepathy", "hello", nil); err == nil {
		t.Fatal("unknown message type accepted")
	}
}

func TestStoreMessageFeedsPatternEngine(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	for i := 0; i < 5; i++ {
		co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "read my email", nil)
	}
	drainLearner(co)

	pats, err := co.patterns.GetUserPatterns(ctx, "u1", types.PatternVoiceCommands)
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	p := pats[string(types.PatternVoiceCommands)]
	if p == nil {
		t.Fatal("no voice-command pattern learned from stored messages")
	}
	if got, _ := p.Data["most_frequent"].(string); got != "read my email" {
		t.Fatalf("most_frequent = %q", got)
	}
}

func TestEmailCacheRoundTrip(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	emails := []types.EmailSummary{
		{ID: "m1", From: "a@example.com", Subject: "Q3 numbers", Unread: true},
		{ID: "m2", From: "b@example.com", Subject: "Lunch?"},
	}
	if err := co.CacheUserEmails(ctx, "u1", emails); err != nil {
		t.Fatalf("cache emails: %v", err)
	}

	ec, err := co.GetUserEmailsWithContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("get emails: %v", err)
	}
	if !ec.CacheStatus.EmailsCached {
		t.Fatal("emails_cached should be true after a cache write")
	}
	if len(ec.Emails) != 2 || ec.Emails[0].Subject != "Q3 numbers" {
		t.Fatalf("emails = %+v", ec.Emails)
	}
}

func TestEmailReadSurvivesBrokenCache(t *testing.T) {
	co := newTestCoordinator(t, brokenCache{})
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	if _, err := co.UpdateSessionContext(ctx, "u1", "s1", types.StateTree{
		"email:last_check":   "2026-08-31T09:00:00Z",
		"email:unread_count": 4,
	}); err != nil {
		t.Fatalf("seed email state: %v", err)
	}

	ec, err := co.GetUserEmailsWithContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("broken cache must not fail the read: %v", err)
	}
	if ec.CacheStatus.EmailsCached {
		t.Fatal("emails_cached true with a failing cache")
	}
	if ec.Settings != types.DefaultResponseSettings() {
		t.Fatalf("settings = %+v, want defaults", ec.Settings)
	}

	// The email:* subtree comes from the session store and must be intact.
	if ec.EmailState["email:last_check"] != "2026-08-31T09:00:00Z" {
		t.Fatalf("email state lost with broken cache: %v", ec.EmailState)
	}
	if n, ok := ec.EmailState["email:unread_count"].(float64); !ok || n != 4 {
		t.Fatalf("email:unread_count = %v", ec.EmailState["email:unread_count"])
	}
	if _, ok := ec.EmailState[types.StateKeyAgentStates]; ok {
		t.Fatal("non-email state leaked into email context")
	}
}

func TestCacheUserEmailsSurfacesWriteFailure(t *testing.T) {
	co := newTestCoordinator(t, brokenCache{})

	err := co.CacheUserEmails(context.Background(), "u1", nil)
	if !memerrors.IsTransient(err) {
		t.Fatalf("want transient error, got %v", err)
	}
}

func TestAgentDataEphemeral(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	if err := co.SetAgentCoordinationData(ctx, "u1", "s1", "email_agent", "draft_id", "d-42", false); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := co.GetAgentCoordinationData(ctx, "u1", "s1", "email_agent", "draft_id")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if v != "d-42" {
		t.Fatalf("value = %v", v)
	}

	// Ephemeral data does not reach session state.
	sc, _ := co.GetSessionContext(ctx, "u1", "s1")
	agents, _ := sc.State[types.StateKeyAgentStates].(map[string]any)
	if len(agents) != 0 {
		t.Fatalf("ephemeral data leaked into state: %v", agents)
	}
}

func TestAgentDataPersistentSurvivesCacheLoss(t *testing.T) {
	lc := local.New(local.DefaultConfig())
	co := newTestCoordinator(t, lc)
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	if err := co.SetAgentCoordinationData(ctx, "u1", "s1", "calendar_agent", "next_slot", "09:30", true); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := lc.FlushNamespace(ctx, cache.NamespaceAgent); err != nil {
		t.Fatalf("flush: %v", err)
	}

	v, ok, err := co.GetAgentCoordinationData(ctx, "u1", "s1", "calendar_agent", "next_slot")
	if err != nil || !ok {
		t.Fatalf("get after flush: %v %v", ok, err)
	}
	if v != "09:30" {
		t.Fatalf("value = %v", v)
	}
}

func TestAgentDataPersistentUnknownSession(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))

	err := co.SetAgentCoordinationData(context.Background(), "u1", "missing", "a", "k", "v", true)
	if !memerrors.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestDeleteSessionDropsSnapshot(t *testing.T) {
	lc := local.New(local.DefaultConfig())
	co := newTestCoordinator(t, lc)
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	ok, err := co.DeleteSession(ctx, "u1", "s1")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}

	exists, err := lc.Exists(ctx, snapshotKey("u1", "s1"), cache.NamespaceSession)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("snapshot survived session deletion")
	}
}

func TestGetMessagesOwnerScoped(t *testing.T) {
	co := newTestCoordinator(t, local.New(local.DefaultConfig()))
	ctx := context.Background()

	co.CreateSession(ctx, "u1", "s1")
	msg, err := co.StoreConversationMessage(ctx, "u1", "s1", types.MessageTypeUserVoice, "hello there", nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, err := co.GetMessages(ctx, msg.ConversationID, "intruder", 10, 0, ""); !memerrors.IsUnauthorized(err) {
		t.Fatalf("want unauthorized, got %v", err)
	}

	msgs, err := co.GetMessages(ctx, msg.ConversationID, "u1", 10, 0, "")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("owner read: %v %v", msgs, err)
	}
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCache = errors.New("cache down")

func (brokenCache) Get(context.Context, string, cache.Namespace) ([]byte, error) {
	return nil, errCache
}
func (brokenCache) Set(context.Context, string, cache.Namespace, []byte, time.Duration) error {
	return errCache
}
func (brokenCache) Delete(context.Context, string, cache.Namespace) error  { return errCache }
func (brokenCache) Exists(context.Context, string, cache.Namespace) (bool, error) {
	return false, errCache
}
func (brokenCache) FlushNamespace(context.Context, cache.Namespace) error { return errCache }
func (brokenCache) Ping(context.Context) error                            { return errCache }
func (brokenCache) Close() error                                          { return nil }
func (brokenCache) Stats() cache.Stats                                    { return cache.Stats{} }
