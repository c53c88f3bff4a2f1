// Package server exposes the read-only operations API: call history,
// transcripts, and live status.
package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/callweave/callweave/internal/storage"
)

var callIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type CallStore interface {
	GetCallsByDate(date string) ([]storage.Call, error)
	GetCall(callSID string) (storage.Call, error)
	GetTranscript(callSID string) ([]storage.TranscriptTurn, error)
	GetDates() ([]string, error)
}

// StatusHooks surfaces live process state on /api/status.
type StatusHooks struct {
	ActiveCalls func() int
	Warnings    func() []string
}

func RegisterAPIRoutes(mux *http.ServeMux, store CallStore, status StatusHooks) {
	mux.HandleFunc("GET /api/calls", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		calls, err := store.GetCallsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list calls: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, calls)
	})

	mux.HandleFunc("GET /api/calls/{id}", func(w http.ResponseWriter, r *http.Request) {
		callSID := r.PathValue("id")
		if !validCallID(callSID) {
			writeJSONError(w, http.StatusForbidden, "invalid call id")
			return
		}

		call, err := store.GetCall(callSID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get call: %v", err))
			return
		}

		transcript, err := store.GetTranscript(callSID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get call transcript: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"call":       call,
			"transcript": transcript,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if status.ActiveCalls != nil {
			active = status.ActiveCalls()
		}
		var warnings []string
		if status.Warnings != nil {
			warnings = status.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"active_calls": active, "warnings": warnings})
	})
}

func validCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
