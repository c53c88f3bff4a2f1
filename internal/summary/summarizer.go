// Package summary turns a finished call's transcript into a stored summary
// using a configurable LLM provider.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/callweave/callweave/internal/config"
	"github.com/callweave/callweave/internal/llm"
	"github.com/callweave/callweave/internal/session"
	"github.com/callweave/callweave/internal/storage"
)

// Transcripts shorter than this many words are not worth summarizing.
const minTranscriptWords = 20

type ClientFactory func(provider, model string) (llm.Client, error)

// Store is the slice of persistence the notifier needs.
type Store interface {
	ClaimSummaryRequest(callSID, promptHash string) (bool, error)
	UpdateSummary(callSID, summary, status string) error
}

type Notifier struct {
	cfg     config.Summarization
	store   Store
	factory ClientFactory
	logger  *slog.Logger
	sleep   func(time.Duration)
}

func New(cfg config.Summarization, store Store, factory ClientFactory, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:     cfg,
		store:   store,
		factory: factory,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// SendSummary summarizes one finished call. The claim on (call, transcript
// hash) makes the operation idempotent: a second delivery for the same call
// is a no-op. Implements session.SummaryNotifier.
func (n *Notifier) SendSummary(ctx context.Context, callSID string, turns []session.Turn, caller session.CallerIdentity, duration time.Duration) error {
	transcript := formatTranscript(turns)
	if len(strings.Fields(transcript)) < minTranscriptWords {
		n.logger.Info("transcript too short to summarize", "call_sid", callSID, "turns", len(turns))
		if err := n.store.UpdateSummary(callSID, "", storage.SummaryCompleted); err != nil {
			return fmt.Errorf("mark summary skipped: %w", err)
		}
		return nil
	}

	hash := sha256.Sum256([]byte(transcript))
	claimed, err := n.store.ClaimSummaryRequest(callSID, hex.EncodeToString(hash[:]))
	if err != nil {
		return fmt.Errorf("claim summary request: %w", err)
	}
	if !claimed {
		n.logger.Info("summary already requested", "call_sid", callSID)
		return nil
	}

	if err := n.store.UpdateSummary(callSID, "", storage.SummaryRunning); err != nil {
		n.logger.Warn("mark summary running", "call_sid", callSID, "error", err)
	}

	text, err := n.summarize(ctx, transcript, caller, duration)
	if err != nil {
		if updateErr := n.store.UpdateSummary(callSID, "", storage.SummaryFailed); updateErr != nil {
			n.logger.Warn("mark summary failed", "call_sid", callSID, "error", updateErr)
		}
		return fmt.Errorf("summarize call %s: %w", callSID, err)
	}

	if err := n.store.UpdateSummary(callSID, text, storage.SummaryCompleted); err != nil {
		return fmt.Errorf("store summary for call %s: %w", callSID, err)
	}

	n.logger.Info("call summarized", "call_sid", callSID, "chars", len(text))
	return nil
}

func (n *Notifier) summarize(ctx context.Context, transcript string, caller session.CallerIdentity, duration time.Duration) (string, error) {
	provider, model, err := llm.ParseModel(n.cfg.Model)
	if err != nil {
		return "", err
	}

	client, err := n.factory(provider, model)
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: n.cfg.SystemPrompt},
		{Role: "user", Content: buildPrompt(transcript, caller, duration)},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < len(backoff)-1 {
			n.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize failed after retries: %w", lastErr)
}

func buildPrompt(transcript string, caller session.CallerIdentity, duration time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", time.Now().UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "From: %s\n", caller.From)
	fmt.Fprintf(&b, "To: %s\n", caller.To)
	if caller.Name != "" {
		fmt.Fprintf(&b, "Caller name: %s\n", caller.Name)
	}
	fmt.Fprintf(&b, "Duration: %s\n\n", duration.Round(time.Second))
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

func formatTranscript(turns []session.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		switch turn.Role {
		case "user":
			b.WriteString("Caller: ")
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString(turn.Role + ": ")
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
