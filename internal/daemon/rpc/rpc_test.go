package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/daemon/eventlog"
	"github.com/gsd-build/gsd-relay/internal/question"
	"github.com/gsd-build/gsd-relay/internal/session"
	"github.com/gsd-build/gsd-relay/internal/types"
)

type stubMessenger struct {
	mu     sync.Mutex
	topicN int
	topics []string
	posts  map[string][]string
	group  []string
}

func newStubMessenger() *stubMessenger {
	return &stubMessenger{posts: make(map[string][]string)}
}

func (m *stubMessenger) CreateTopic(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topicN++
	id := fmt.Sprintf("%d", 1000+m.topicN)
	m.topics = append(m.topics, title)
	return id, nil
}

func (m *stubMessenger) SendToTopic(_ context.Context, topicID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[topicID] = append(m.posts[topicID], text)
	return nil
}

func (m *stubMessenger) SendToGroup(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.group = append(m.group, text)
	return nil
}

func newHandlers(t *testing.T) (*Handlers, *stubMessenger) {
	t.Helper()
	reg := session.NewRegistry(nil)
	msgr := newStubMessenger()
	mgr := question.NewManager(msgr, reg, nil)
	return &Handlers{
		Sessions:  reg,
		Questions: mgr,
		Version:   "test",
		StartedAt: time.Now(),
	}, msgr
}

func call(t *testing.T, h daemon.Handler, clientID, params string) (any, error) {
	t.Helper()
	return h(context.Background(), clientID, json.RawMessage(params))
}

func TestSessionRegisterAssignsLabel(t *testing.T) {
	h, _ := newHandlers(t)

	res, err := call(t, h.SessionRegister, "cli_1", `{"project_root":"/home/dev/myapp"}`)
	if err != nil {
		t.Fatalf("session.register: %v", err)
	}
	sess := res.(SessionRegisterResponse).Session
	if sess.Label != "myapp/1" {
		t.Fatalf("label = %q, want myapp/1", sess.Label)
	}

	res, err = call(t, h.SessionList, "cli_any", `{}`)
	if err != nil {
		t.Fatalf("session.list: %v", err)
	}
	list := res.(SessionListResponse).Sessions
	if len(list) != 1 || list[0].ID != sess.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestSessionReRegisterReplacesPrevious(t *testing.T) {
	h, _ := newHandlers(t)

	res1, _ := call(t, h.SessionRegister, "cli_1", `{"project_root":"/a/app"}`)
	res2, err := call(t, h.SessionRegister, "cli_1", `{"project_root":"/a/app"}`)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	first := res1.(SessionRegisterResponse).Session
	second := res2.(SessionRegisterResponse).Session
	if first.ID == second.ID {
		t.Fatal("re-register should mint a new session")
	}
	if h.Sessions.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Sessions.Count())
	}
	// Counter is monotonic: the replacement gets the next number.
	if second.Label != "app/2" {
		t.Fatalf("label = %q, want app/2", second.Label)
	}
}

func TestAskBlocksUntilAnswered(t *testing.T) {
	h, msgr := newHandlers(t)
	call(t, h.SessionRegister, "cli_1", `{"project_root":"/w/web"}`)

	type outcome struct {
		res any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := call(t, h.Ask, "cli_1", `{"text":"Deploy to prod?","context":"CI is green"}`)
		done <- outcome{res, err}
	}()

	// Wait for the question to be posted, then answer it via the thread.
	var threadID string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pending := h.Questions.GetPendingQuestions()
		if len(pending) == 1 {
			threadID = pending[0].ThreadID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if threadID == "" {
		t.Fatal("question never became pending")
	}
	if !h.Questions.DeliverAnswer(threadID, "yes, ship it") {
		t.Fatal("DeliverAnswer rejected")
	}

	o := <-done
	if o.err != nil {
		t.Fatalf("ask: %v", o.err)
	}
	resp := o.res.(AskResponse)
	if resp.Answer != "yes, ship it" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.ThreadID != threadID {
		t.Fatalf("thread = %q, want %q", resp.ThreadID, threadID)
	}
	if len(msgr.topics) != 1 {
		t.Fatalf("topics = %v", msgr.topics)
	}
}

func TestAskWithoutSessionFails(t *testing.T) {
	h, _ := newHandlers(t)
	if _, err := call(t, h.Ask, "cli_unregistered", `{"text":"anyone there?"}`); err == nil {
		t.Fatal("ask without a registered session should fail")
	}
}

func TestAskEmptyTextFails(t *testing.T) {
	h, _ := newHandlers(t)
	call(t, h.SessionRegister, "cli_1", `{}`)
	if _, err := call(t, h.Ask, "cli_1", `{"text":""}`); err == nil {
		t.Fatal("empty text should fail")
	}
}

func TestAskTimeoutMapsToCodedError(t *testing.T) {
	reg := session.NewRegistry(nil)
	msgr := newStubMessenger()
	mgr := question.NewManager(msgr, reg, nil)
	h := &Handlers{Sessions: reg, Questions: mgr, Version: "test", StartedAt: time.Now()}
	call(t, h.SessionRegister, "cli_1", `{}`)

	// Cancel the context instead of waiting out a minute-granularity timeout.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := h.Ask(ctx, "cli_1", json.RawMessage(`{"text":"slow question"}`))
	if err == nil {
		t.Fatal("expected error")
	}

	// Coded timeout mapping is exercised directly.
	wrapped := fmt.Errorf("question q_x: %w", question.ErrTimeout)
	if !errors.Is(wrapped, question.ErrTimeout) {
		t.Fatal("sanity: wrap lost the sentinel")
	}
	coded := daemon.NewError(daemon.CodeTimeout, wrapped.Error())
	var asErr *daemon.Error
	if !errors.As(coded, &asErr) || asErr.Code != daemon.CodeTimeout {
		t.Fatalf("coded error = %+v", coded)
	}
}

func TestQuestionQueriesAndManualDelivery(t *testing.T) {
	h, _ := newHandlers(t)
	res, _ := call(t, h.SessionRegister, "cli_1", `{"project_root":"/x/svc"}`)
	sessID := res.(SessionRegisterResponse).Session.ID

	done := make(chan struct{})
	go func() {
		call(t, h.Ask, "cli_1", `{"text":"Which region?"}`)
		close(done)
	}()

	var threadID string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if pending := h.Questions.GetPendingQuestions(); len(pending) == 1 {
			threadID = pending[0].ThreadID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if threadID == "" {
		t.Fatal("no pending question")
	}

	res, err := call(t, h.QuestionByThread, "cli_any", fmt.Sprintf(`{"thread_id":%q}`, threadID))
	if err != nil {
		t.Fatalf("question.byThread: %v", err)
	}
	if got := res.(QuestionByThreadResponse).Question.SessionID; got != sessID {
		t.Fatalf("session = %q, want %q", got, sessID)
	}

	res, err = call(t, h.AnswerDeliver, "cli_any", fmt.Sprintf(`{"thread_id":%q,"text":"eu-west-1"}`, threadID))
	if err != nil {
		t.Fatalf("answer.deliver: %v", err)
	}
	if !res.(AnswerDeliverResponse).Delivered {
		t.Fatal("first delivery should succeed")
	}
	<-done

	// Second delivery is a no-op.
	res, _ = call(t, h.AnswerDeliver, "cli_any", fmt.Sprintf(`{"thread_id":%q,"text":"late"}`, threadID))
	if res.(AnswerDeliverResponse).Delivered {
		t.Fatal("duplicate delivery should report false")
	}

	// History keeps the answered question; pending is empty.
	res, err = call(t, h.QuestionHistory, "cli_any", fmt.Sprintf(`{"session_id":%q}`, sessID))
	if err != nil {
		t.Fatalf("question.history: %v", err)
	}
	hist := res.(QuestionListResponse).Questions
	if len(hist) != 1 || hist[0].Answer != "eu-west-1" {
		t.Fatalf("history = %+v", hist)
	}
	res, _ = call(t, h.QuestionPending, "cli_any", `{}`)
	if n := len(res.(QuestionListResponse).Questions); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestHealthCounters(t *testing.T) {
	h, _ := newHandlers(t)
	call(t, h.SessionRegister, "cli_1", `{}`)
	call(t, h.SessionRegister, "cli_2", `{}`)

	res, err := call(t, h.Health, "cli_any", `{}`)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	hr := res.(HealthResponse)
	if hr.Status != "ok" || hr.Sessions != 2 || hr.PendingQuestions != 0 {
		t.Fatalf("health = %+v", hr)
	}
}

func TestHistoryRecentReadsEventLog(t *testing.T) {
	h, _ := newHandlers(t)

	log, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open eventlog: %v", err)
	}
	defer log.Close()
	h.Events = log

	log.Emit(types.SessionConnectedEvent{
		Type:      "session.connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: "ses_a",
		Label:     "app/1",
	})

	res, err := call(t, h.HistoryRecent, "cli_any", `{"limit":10}`)
	if err != nil {
		t.Fatalf("history.recent: %v", err)
	}
	events := res.(HistoryRecentResponse).Events
	if len(events) != 1 || events[0].Type != "session.connected" {
		t.Fatalf("events = %+v", events)
	}
}

func TestHistoryRecentWithoutLogFails(t *testing.T) {
	h, _ := newHandlers(t)
	if _, err := call(t, h.HistoryRecent, "cli_any", `{}`); err == nil {
		t.Fatal("expected error without event log")
	}
}
