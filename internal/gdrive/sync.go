// Package gdrive exports a daily digest of call summaries to Google Drive.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/callweave/callweave/internal/storage"
)

type Syncer struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// SyncDigest uploads one day's digest as a Google Doc, creating it on first
// sync and updating it in place afterwards.
func (s *Syncer) SyncDigest(date, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("callweave-%s", date)
	body := strings.NewReader(content)

	if fileID, ok := s.fileIDs[date]; ok {
		_, err := s.service.Files.Update(fileID, &drive.File{}).Media(body).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := s.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{s.folderID},
	}).Media(body).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = doc.Id
	return nil
}

// BuildDigest renders the day's calls as a plain-text document: one entry per
// call with caller, timing, and the stored summary.
func BuildDigest(date string, calls []storage.Call) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call digest for %s\n\n", date)

	if len(calls) == 0 {
		b.WriteString("No calls.\n")
		return b.String()
	}

	for _, call := range calls {
		who := call.CallerName
		if who == "" {
			who = call.FromNumber
		}
		if who == "" {
			who = "unknown caller"
		}

		fmt.Fprintf(&b, "%s — %s\n", call.StartedAt.UTC().Format("15:04"), who)
		if call.EndedAt != nil {
			fmt.Fprintf(&b, "Duration: %s\n", call.EndedAt.Sub(call.StartedAt).Round(time.Second))
		}
		if call.Summary != "" {
			fmt.Fprintf(&b, "%s\n", call.Summary)
		} else {
			fmt.Fprintf(&b, "(summary %s)\n", call.SummaryStatus)
		}
		b.WriteString("\n")
	}

	return b.String()
}
