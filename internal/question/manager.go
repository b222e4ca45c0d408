package question

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gsd-build/gsd-relay/internal/identity"
	"github.com/gsd-build/gsd-relay/internal/session"
	"github.com/gsd-build/gsd-relay/internal/types"
)

// ErrTimeout is returned by Ask when no answer arrives within the timeout
// window. It is an expected failure, not a daemon fault.
var ErrTimeout = errors.New("timed out waiting for an answer")

const (
	// DefaultTimeout is the ask timeout when the caller does not specify one.
	DefaultTimeout = 30 * time.Minute

	// FollowUpWindow is how long after an answer a new question from the same
	// session reuses the answered question's thread.
	FollowUpWindow = 5 * time.Minute
)

// Messenger is the external channel the Manager posts questions to. The
// Telegram integration implements it; tests use fakes.
type Messenger interface {
	// CreateTopic opens a new conversation thread and returns its ID. Failure
	// (no forum support, missing bot permission) triggers fallback mode.
	CreateTopic(ctx context.Context, title string) (string, error)
	// SendToTopic posts into an existing thread.
	SendToTopic(ctx context.Context, topicID, text string) error
	// SendToGroup posts without a thread association (fallback mode).
	SendToGroup(ctx context.Context, text string) error
}

// SessionDirectory is the slice of the session registry the Manager needs:
// label lookup and status updates.
type SessionDirectory interface {
	Get(sessionID string) (session.Session, bool)
	UpdateStatus(sessionID string, status session.Status, questionTitle string) error
}

// pendingQuestion couples a question with its resolver channel. The channel
// is buffered so the resolving side never blocks; removal from the pending
// map under the Manager's mutex arbitrates the single send.
type pendingQuestion struct {
	q        *Question
	answerCh chan string
}

// Manager orchestrates the full life of blocking questions: thread reuse,
// posting, suspension of the asking call, answer routing, and timeouts. All
// maps are private and mutated only under mu.
type Manager struct {
	messenger Messenger
	sessions  SessionDirectory
	events    types.Sink

	followUpWindow time.Duration
	defaultTimeout time.Duration

	mu               sync.Mutex
	questions        map[string]*Question // question ID -> question (full run history)
	pending          map[string]*pendingQuestion
	threadToQuestion map[string]string   // thread ID -> pending question ID
	sessionQuestions map[string][]string // session ID -> question IDs in creation order
}

// Option configures a Manager.
type Option func(*Manager)

// WithFollowUpWindow overrides the follow-up window. Used by tests.
func WithFollowUpWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.followUpWindow = d
	}
}

// WithDefaultTimeout overrides the timeout applied when Ask is called with
// a zero timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultTimeout = d
		}
	}
}

// NewManager creates a question manager. The sink may be nil.
func NewManager(messenger Messenger, sessions SessionDirectory, events types.Sink, opts ...Option) *Manager {
	m := &Manager{
		messenger:        messenger,
		sessions:         sessions,
		events:           events,
		followUpWindow:   FollowUpWindow,
		defaultTimeout:   DefaultTimeout,
		questions:        make(map[string]*Question),
		pending:          make(map[string]*pendingQuestion),
		threadToQuestion: make(map[string]string),
		sessionQuestions: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ask posts a question to the external channel on behalf of a session and
// blocks until an answer is routed back via DeliverAnswer or the timeout
// elapses. A zero timeout means DefaultTimeout.
//
// Thread-creation failure is recovered locally by falling back to a group
// broadcast; only a failure of the fallback itself is surfaced. Timeout is
// surfaced as ErrTimeout with all tracking state already cleaned up.
func (m *Manager) Ask(ctx context.Context, sessionID, text, contextText string, timeout time.Duration) (Question, error) {
	if m.messenger == nil {
		return Question{}, errors.New("no messaging channel configured")
	}
	sess, ok := m.sessions.Get(sessionID)
	if !ok {
		return Question{}, fmt.Errorf("session %s not found", sessionID)
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	title := Title(text)
	now := time.Now().UTC()

	questionID := identity.GenerateQuestionID()

	// Follow-up continuity: reuse the thread of this session's most recently
	// answered question when the answer is fresh enough. Selection and claim
	// are one critical section, so a concurrent follow-up from the same
	// session can never route two pending questions onto the same thread.
	threadID := m.claimReusableThread(sessionID, questionID, now)

	fallback := false
	if threadID == "" {
		created, err := m.messenger.CreateTopic(ctx, fmt.Sprintf("%s: %s", sess.Label, title))
		if err != nil {
			// No forum support or missing permission: broadcast instead. The
			// question then has no thread and cannot receive a routed reply
			// or serve as a follow-up target.
			fallback = true
		} else {
			threadID = created
		}
	}

	body := formatBody(text, contextText)
	if fallback {
		if err := m.messenger.SendToGroup(ctx, fmt.Sprintf("❓ %s\n\n%s", sess.Label, body)); err != nil {
			return Question{}, fmt.Errorf("post question: %w", err)
		}
	} else {
		if err := m.messenger.SendToTopic(ctx, threadID, body); err != nil {
			// Release the claim so the next follow-up can use the thread.
			m.releaseThread(threadID, questionID)
			return Question{}, fmt.Errorf("post question: %w", err)
		}
	}

	q := &Question{
		ID:        questionID,
		SessionID: sessionID,
		Text:      text,
		Context:   contextText,
		CreatedAt: now,
	}
	if !fallback {
		q.ThreadID = threadID
	}
	p := &pendingQuestion{q: q, answerCh: make(chan string, 1)}

	m.mu.Lock()
	m.questions[q.ID] = q
	m.sessionQuestions[sessionID] = append(m.sessionQuestions[sessionID], q.ID)
	m.pending[q.ID] = p
	if q.ThreadID != "" {
		m.threadToQuestion[q.ThreadID] = q.ID
	}
	m.mu.Unlock()

	_ = m.sessions.UpdateStatus(sessionID, session.StatusWaiting, title)
	m.emit(types.QuestionAskedEvent{
		Type:       "question.asked",
		Timestamp:  now.Format(time.RFC3339Nano),
		QuestionID: q.ID,
		SessionID:  sessionID,
		ThreadID:   q.ThreadID,
		Title:      title,
	})

	return m.wait(ctx, p, timeout)
}

// wait suspends the caller until the question resolves. This is the system's
// one genuine suspension point; the timer and the pending bookkeeping are
// cleaned up together whichever terminal event fires first.
func (m *Manager) wait(ctx context.Context, p *pendingQuestion, timeout time.Duration) (Question, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.answerCh:
		return m.snapshot(p.q), nil

	case <-timer.C:
		if m.cancelPending(p.q.ID) {
			return Question{}, fmt.Errorf("question %s: %w", p.q.ID, ErrTimeout)
		}
		// An answer raced the timer and won the pending-map arbitration; it
		// is already on the channel.
		<-p.answerCh
		return m.snapshot(p.q), nil

	case <-ctx.Done():
		if m.cancelPending(p.q.ID) {
			return Question{}, ctx.Err()
		}
		<-p.answerCh
		return m.snapshot(p.q), nil
	}
}

// DeliverAnswer routes an inbound reply to the pending question tracked for
// the given thread. It returns false, with no other effect, when the thread
// is unknown or its question already resolved: duplicate and late deliveries
// are expected with at-least-once messaging.
func (m *Manager) DeliverAnswer(threadID, text string) bool {
	m.mu.Lock()
	qID, ok := m.threadToQuestion[threadID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	p, ok := m.pending[qID]
	if !ok {
		// A route with no pending question is a claim whose question is
		// still being posted; the route must survive so the claim holds.
		m.mu.Unlock()
		return false
	}
	delete(m.pending, qID)
	delete(m.threadToQuestion, threadID)

	now := time.Now().UTC()
	p.q.AnsweredAt = &now
	p.q.Answer = text
	sessionID := p.q.SessionID
	m.mu.Unlock()

	// Buffered channel: exactly one send, never blocks.
	p.answerCh <- text

	_ = m.sessions.UpdateStatus(sessionID, session.StatusWorking, "")
	m.emit(types.QuestionAnsweredEvent{
		Type:       "question.answered",
		Timestamp:  now.Format(time.RFC3339Nano),
		QuestionID: qID,
		SessionID:  sessionID,
		ThreadID:   threadID,
	})
	return true
}

// cancelPending removes a question from active tracking if it is still
// pending. Returns true if this call performed the cancellation, false if
// the question was already resolved. The historical record is retained.
func (m *Manager) cancelPending(questionID string) bool {
	m.mu.Lock()
	p, ok := m.pending[questionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.pending, questionID)
	if p.q.ThreadID != "" {
		delete(m.threadToQuestion, p.q.ThreadID)
	}
	p.q.TimedOut = true
	sessionID := p.q.SessionID
	threadID := p.q.ThreadID
	m.mu.Unlock()

	_ = m.sessions.UpdateStatus(sessionID, session.StatusIdle, "")
	m.emit(types.QuestionTimedOutEvent{
		Type:       "question.timed_out",
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		QuestionID: questionID,
		SessionID:  sessionID,
		ThreadID:   threadID,
	})
	return true
}

// GetPendingQuestions returns copies of all questions with no answer yet, in
// creation order.
func (m *Manager) GetPendingQuestions() []Question {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Question, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, *p.q)
	}
	sortByCreation(out)
	return out
}

// GetSessionQuestions returns the full question history (answered, pending,
// and timed out) for one session, in creation order.
func (m *Manager) GetSessionQuestions(sessionID string) []Question {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.sessionQuestions[sessionID]
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			out = append(out, *q)
		}
	}
	return out
}

// GetQuestionByThread returns the pending question tracked for a thread.
// Used by reply-routing layers to decide whether an inbound message belongs
// to a question.
func (m *Manager) GetQuestionByThread(threadID string) (Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qID, ok := m.threadToQuestion[threadID]
	if !ok {
		return Question{}, false
	}
	q, ok := m.questions[qID]
	if !ok {
		return Question{}, false
	}
	return *q, true
}

// PendingCount returns the number of unanswered questions.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// claimReusableThread looks for the thread of the session's most recently
// answered question, within the follow-up window of now, and routes it to the
// given question ID without releasing the lock in between. Threads already
// routed to a question are skipped, so under concurrent follow-ups each
// question claims its own thread. Returns "" when no thread qualifies.
//
// The claim is a routing entry ahead of the question's registration: replies
// arriving in the claimed thread before the question is fully tracked are
// dropped by DeliverAnswer like any reply to a resolved thread.
func (m *Manager) claimReusableThread(sessionID, questionID string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Question
	for _, id := range m.sessionQuestions[sessionID] {
		q := m.questions[id]
		if q == nil || q.AnsweredAt == nil || q.ThreadID == "" {
			continue
		}
		if now.Sub(*q.AnsweredAt) > m.followUpWindow {
			continue
		}
		if _, busy := m.threadToQuestion[q.ThreadID]; busy {
			continue
		}
		if best == nil || q.AnsweredAt.After(*best.AnsweredAt) {
			best = q
		}
	}
	if best == nil {
		return ""
	}
	m.threadToQuestion[best.ThreadID] = questionID
	return best.ThreadID
}

// releaseThread drops a thread claim if it still belongs to the given
// question. A no-op for threads the question never claimed.
func (m *Manager) releaseThread(threadID, questionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threadToQuestion[threadID] == questionID {
		delete(m.threadToQuestion, threadID)
	}
}

// snapshot returns a copy of the question taken under the lock.
func (m *Manager) snapshot(q *Question) Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *q
}

func (m *Manager) emit(event types.Event) {
	if m.events != nil {
		m.events.Emit(event)
	}
}

// formatBody renders the posted message: the question text plus, when
// present, the context block beneath it.
func formatBody(text, contextText string) string {
	if contextText == "" {
		return text
	}
	return fmt.Sprintf("%s\n\nContext:\n%s", text, contextText)
}
