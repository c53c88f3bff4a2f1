package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/callweave/callweave/internal/session"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterCallStartAndGet(t *testing.T) {
	store := newTestStore(t)

	caller := session.CallerIdentity{From: "+15550001111", To: "+15550002222"}
	conversationID, err := store.RegisterCallStart("CA1", caller)
	if err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}
	if conversationID == "" {
		t.Fatal("expected a conversation id")
	}

	call, err := store.GetCall("CA1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if call.ConversationID != conversationID {
		t.Fatalf("expected conversation id %q, got %q", conversationID, call.ConversationID)
	}
	if call.FromNumber != "+15550001111" || call.ToNumber != "+15550002222" {
		t.Fatalf("unexpected numbers: %#v", call)
	}
	if call.Status != "active" {
		t.Fatalf("expected active status, got %q", call.Status)
	}
	if call.SummaryStatus != SummaryPending {
		t.Fatalf("expected pending summary status, got %q", call.SummaryStatus)
	}
	if call.EndedAt != nil {
		t.Fatalf("expected no end time, got %v", call.EndedAt)
	}
	if time.Since(call.StartedAt) > time.Minute {
		t.Fatalf("unexpected start time %v", call.StartedAt)
	}
}

func TestRegisterCallStartRejectsEmptySID(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("  ", session.CallerIdentity{}); err == nil {
		t.Fatal("expected error for empty call sid")
	}
}

func TestRegisterCallStartRejectsDuplicate(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{}); err != nil {
		t.Fatalf("first RegisterCallStart failed: %v", err)
	}
	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{}); err == nil {
		t.Fatal("expected error for duplicate call sid")
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{}); err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}

	if err := store.AppendTranscriptTurn("CA1", "user", "  hi there "); err != nil {
		t.Fatalf("AppendTranscriptTurn failed: %v", err)
	}
	if err := store.AppendTranscriptTurn("CA1", "assistant", "hello"); err != nil {
		t.Fatalf("AppendTranscriptTurn failed: %v", err)
	}

	turns, err := store.GetTranscript("CA1")
	if err != nil {
		t.Fatalf("GetTranscript failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Text != "hi there" {
		t.Fatalf("unexpected first turn: %#v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Text != "hello" {
		t.Fatalf("unexpected second turn: %#v", turns[1])
	}
}

func TestCallLifecycleUpdates(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{}); err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}

	if err := store.SetCallerName("CA1", " Jane "); err != nil {
		t.Fatalf("SetCallerName failed: %v", err)
	}
	if err := store.RegisterCallEnd("CA1"); err != nil {
		t.Fatalf("RegisterCallEnd failed: %v", err)
	}
	if err := store.UpdateSummary("CA1", "caller said hi", SummaryCompleted); err != nil {
		t.Fatalf("UpdateSummary failed: %v", err)
	}

	call, err := store.GetCall("CA1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if call.CallerName != "Jane" {
		t.Fatalf("expected trimmed caller name, got %q", call.CallerName)
	}
	if call.Status != "ended" || call.EndedAt == nil {
		t.Fatalf("expected ended call, got %#v", call)
	}
	if call.Summary != "caller said hi" || call.SummaryStatus != SummaryCompleted {
		t.Fatalf("unexpected summary fields: %#v", call)
	}
}

func TestUpdatesOnMissingCall(t *testing.T) {
	store := newTestStore(t)

	if err := store.RegisterCallEnd("CAmissing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if err := store.SetCallerName("CAmissing", "Jane"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestGetCallNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCall("CAmissing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestClaimSummaryRequestOnce(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{}); err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}

	claimed, err := store.ClaimSummaryRequest("CA1", "hash-1")
	if err != nil {
		t.Fatalf("first ClaimSummaryRequest failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = store.ClaimSummaryRequest("CA1", "hash-1")
	if err != nil {
		t.Fatalf("second ClaimSummaryRequest failed: %v", err)
	}
	if claimed {
		t.Fatal("expected duplicate claim to lose")
	}

	claimed, err = store.ClaimSummaryRequest("CA1", "hash-2")
	if err != nil {
		t.Fatalf("different-hash ClaimSummaryRequest failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim with a different hash to win")
	}
}

func TestGetCallsByDateAndDates(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RegisterCallStart("CA1", session.CallerIdentity{From: "+1555"}); err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}
	if _, err := store.RegisterCallStart("CA2", session.CallerIdentity{From: "+1666"}); err != nil {
		t.Fatalf("RegisterCallStart failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")

	calls, err := store.GetCallsByDate(today)
	if err != nil {
		t.Fatalf("GetCallsByDate failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls for today, got %d", len(calls))
	}

	calls, err = store.GetCallsByDate("1999-01-01")
	if err != nil {
		t.Fatalf("GetCallsByDate failed: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no calls for old date, got %d", len(calls))
	}

	dates, err := store.GetDates()
	if err != nil {
		t.Fatalf("GetDates failed: %v", err)
	}
	if len(dates) != 1 || dates[0] != today {
		t.Fatalf("unexpected dates: %v", dates)
	}
}
