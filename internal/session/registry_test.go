package session

import (
	"sync"
	"testing"

	"github.com/gsd-build/gsd-relay/internal/types"
)

// recordingSink collects emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *recordingSink) Emit(event types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) typesSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType())
	}
	return out
}

func TestRegisterAssignsSequentialLabels(t *testing.T) {
	r := NewRegistry(nil)

	first := r.Register("c1", "/repo/foo")
	second := r.Register("c2", "/repo/foo")
	other := r.Register("c3", "/repo/bar")

	if first.Label != "foo/1" {
		t.Errorf("first label = %q, want foo/1", first.Label)
	}
	if second.Label != "foo/2" {
		t.Errorf("second label = %q, want foo/2", second.Label)
	}
	if other.Label != "bar/1" {
		t.Errorf("other label = %q, want bar/1", other.Label)
	}
}

func TestLabelCounterNeverReused(t *testing.T) {
	r := NewRegistry(nil)

	first := r.Register("c1", "/repo/foo")
	if _, ok := r.Unregister(first.ID); !ok {
		t.Fatal("unregister failed")
	}

	second := r.Register("c2", "/repo/foo")
	if second.Label != "foo/2" {
		t.Errorf("label after unregister = %q, want foo/2 (counters are monotonic)", second.Label)
	}
}

func TestRegisterWithoutProjectRoot(t *testing.T) {
	r := NewRegistry(nil)

	s := r.Register("c1", "")
	if s.Label != "session/1" {
		t.Errorf("label = %q, want session/1", s.Label)
	}
}

func TestLabelPrefixSanitized(t *testing.T) {
	tests := []struct {
		root string
		want string
	}{
		{"/home/alice/src/My_Proj", "my-proj"},
		{"/x/weird.name", "weird-name"},
		{"/x/UPPER", "upper"},
		{"/x/a-very-long-project-name-indeed", "a-very-long-proj"},
		{"/x/---", "session"},
	}
	for _, tt := range tests {
		if got := labelPrefix(tt.root); got != tt.want {
			t.Errorf("labelPrefix(%q) = %q, want %q", tt.root, got, tt.want)
		}
	}
}

func TestUnregisterUnknownIsNotFatal(t *testing.T) {
	r := NewRegistry(nil)

	if _, ok := r.Unregister("ses_nope"); ok {
		t.Error("unregister of unknown session reported success")
	}
}

func TestUnregisterClient(t *testing.T) {
	r := NewRegistry(nil)

	s := r.Register("c1", "/repo/foo")
	removed, ok := r.UnregisterClient("c1")
	if !ok {
		t.Fatal("UnregisterClient failed for registered client")
	}
	if removed.ID != s.ID {
		t.Errorf("removed session %s, want %s", removed.ID, s.ID)
	}
	if _, ok := r.Get(s.ID); ok {
		t.Error("session still present after UnregisterClient")
	}
	if _, ok := r.GetByClient("c1"); ok {
		t.Error("client mapping still present after UnregisterClient")
	}
}

func TestUpdateStatus(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Register("c1", "/repo/foo")

	if err := r.UpdateStatus(s.ID, StatusWaiting, "Deploy now?"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := r.Get(s.ID)
	if got.Status != StatusWaiting || got.QuestionTitle != "Deploy now?" {
		t.Errorf("got status=%s title=%q", got.Status, got.QuestionTitle)
	}

	// Leaving waiting clears the title
	if err := r.UpdateStatus(s.ID, StatusIdle, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = r.Get(s.ID)
	if got.Status != StatusIdle || got.QuestionTitle != "" {
		t.Errorf("after idle: status=%s title=%q", got.Status, got.QuestionTitle)
	}
}

func TestUpdateStatusUnknownSessionIsError(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.UpdateStatus("ses_nope", StatusIdle, ""); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestListOrderedByConnectTime(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Register("c1", "/repo/a")
	b := r.Register("c2", "/repo/b")

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("list order %s,%s want %s,%s", list[0].ID, list[1].ID, a.ID, b.ID)
	}
}

func TestRegistryEvents(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink)

	s := r.Register("c1", "/repo/foo")
	r.Unregister(s.ID)

	seen := sink.typesSeen()
	if len(seen) != 2 || seen[0] != "session.connected" || seen[1] != "session.disconnected" {
		t.Errorf("events = %v", seen)
	}
}

func TestMutatingReturnedCopyDoesNotAffectRegistry(t *testing.T) {
	r := NewRegistry(nil)
	s := r.Register("c1", "/repo/foo")

	s.Label = "tampered"
	got, _ := r.Get(s.ID)
	if got.Label == "tampered" {
		t.Error("registry state mutated through returned copy")
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(&recordingSink{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := r.Register("c", "/repo/shared")
			_ = r.UpdateStatus(s.ID, StatusWaiting, "q")
			r.Unregister(s.ID)
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("registry not empty after churn: %d sessions", r.Count())
	}
}
