package session

import (
	"errors"
	"sync"
	"testing"
)

type transportMock struct {
	mu     sync.Mutex
	media  []string
	closed int
}

func (t *transportMock) SendMedia(streamSID, payload string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.media = append(t.media, payload)
	return nil
}

func (t *transportMock) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *transportMock) closeCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *transportMock) sentMedia() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.media...)
}

func TestRegistryCreateGetRemove(t *testing.T) {
	reg := NewRegistry()

	sess, err := reg.Create("CA100", &transportMock{}, CallerIdentity{From: "+15550001111"}, Options{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if sess.State() != StateConnecting {
		t.Fatalf("expected new session in connecting state, got %s", sess.State())
	}

	if got := reg.Get("CA100"); got != sess {
		t.Fatalf("Get returned wrong session: %#v", got)
	}
	if got := reg.Get("CA999"); got != nil {
		t.Fatalf("expected nil for unknown call, got %#v", got)
	}

	reg.Remove("CA100")
	if got := reg.Get("CA100"); got != nil {
		t.Fatalf("expected session removed, got %#v", got)
	}
	reg.Remove("CA100") // idempotent
}

func TestRegistryRejectsDuplicateCall(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Create("CA200", &transportMock{}, CallerIdentity{}, Options{}); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}

	_, err := reg.Create("CA200", &transportMock{}, CallerIdentity{}, Options{})
	if !errors.Is(err, ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", reg.Len())
	}
}

func TestRegistryConcurrentCreateExactlyOneWins(t *testing.T) {
	reg := NewRegistry()

	const racers = 16
	var wg sync.WaitGroup
	errs := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Create("CA300", &transportMock{}, CallerIdentity{}, Options{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	rejected := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateCall):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if created != 1 {
		t.Fatalf("expected exactly 1 successful create, got %d", created)
	}
	if rejected != racers-1 {
		t.Fatalf("expected %d rejections, got %d", racers-1, rejected)
	}
}
