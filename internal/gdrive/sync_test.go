package gdrive

import (
	"strings"
	"testing"
	"time"

	"github.com/callweave/callweave/internal/storage"
)

func TestBuildDigestEmpty(t *testing.T) {
	got := BuildDigest("2026-08-20", nil)
	if !strings.Contains(got, "Call digest for 2026-08-20") {
		t.Fatalf("expected header, got %q", got)
	}
	if !strings.Contains(got, "No calls.") {
		t.Fatalf("expected empty marker, got %q", got)
	}
}

func TestBuildDigest(t *testing.T) {
	started := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	ended := started.Add(95 * time.Second)

	calls := []storage.Call{
		{
			CallSID:    "CA1",
			CallerName: "Jane",
			FromNumber: "+15550001111",
			StartedAt:  started,
			EndedAt:    &ended,
			Summary:    "Jane asked about her order.",
		},
		{
			CallSID:       "CA2",
			FromNumber:    "+15550002222",
			StartedAt:     started.Add(time.Hour),
			SummaryStatus: storage.SummaryPending,
		},
	}

	got := BuildDigest("2026-08-20", calls)

	for _, want := range []string{
		"14:30 — Jane",
		"Duration: 1m35s",
		"Jane asked about her order.",
		"15:30 — +15550002222",
		"(summary pending)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in digest:\n%s", want, got)
		}
	}
}
