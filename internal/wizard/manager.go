package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrNotOperator     = errors.New("only the operator who started the wizard can use it")
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type entry struct {
	session *Session
	timer   Timer
	gen     uint64
	touched time.Time
}

// Manager keeps the live wizard sessions. Returned sessions are copies; all
// transitions go through Apply.
type Manager struct {
	mu           sync.Mutex
	clock        Clock
	emojiTimeout time.Duration
	ttl          time.Duration
	sessions     map[string]*entry
	byPrompt     map[string]string
	onExpire     func(*Session)
}

func NewManager(emojiTimeout, ttl time.Duration) *Manager {
	if emojiTimeout <= 0 {
		emojiTimeout = 60 * time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		clock:        realClock{},
		emojiTimeout: emojiTimeout,
		ttl:          ttl,
		sessions:     make(map[string]*entry),
		byPrompt:     make(map[string]string),
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// OnExpire registers a callback for sessions cancelled by the emoji timeout
// or by idling past the TTL. It runs without the manager lock held.
func (m *Manager) OnExpire(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

func (m *Manager) EmojiTimeout() time.Duration { return m.emojiTimeout }

// Start opens a new session. An operator has at most one open session per
// guild; a previous one is cancelled and reported through the expire callback.
func (m *Manager) Start(guildID, operatorID string) *Session {
	expired := m.reap()

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.session.GuildID == guildID && e.session.OperatorID == operatorID {
			e.session.cancel(ReasonReplaced)
			expired = append(expired, e.session.clone())
			m.removeLocked(id)
		}
	}
	s := NewSession(uuid.NewString(), guildID, operatorID)
	m.sessions[s.ID] = &entry{session: s, touched: m.clock.Now()}
	out := s.clone()
	m.mu.Unlock()

	m.notifyExpired(expired)
	return out
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session.clone(), true
}

// BindPrompt records the message that shows the session, so reactions on it
// can be routed back.
func (m *Manager) BindPrompt(id, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if e.session.PromptID != "" {
		delete(m.byPrompt, e.session.PromptID)
	}
	e.session.PromptChannelID = channelID
	e.session.PromptID = messageID
	m.byPrompt[messageID] = id
	return nil
}

// ByPrompt finds the session shown by a message.
func (m *Manager) ByPrompt(messageID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPrompt[messageID]
	if !ok {
		return nil, false
	}
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session.clone(), true
}

// Apply runs one event on behalf of actorID. It arms the emoji timer when the
// session starts waiting for a reaction and drops the session once it is
// terminal. The returned session is a copy of the state after the event.
func (m *Manager) Apply(id, actorID string, ev Event) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if actorID != e.session.OperatorID {
		return e.session.clone(), ErrNotOperator
	}

	before := e.session.State()
	if err := e.session.Apply(ev); err != nil {
		return e.session.clone(), err
	}
	e.touched = m.clock.Now()
	after := e.session.State()

	if before == EmojiPending && after != EmojiPending {
		m.disarmLocked(e)
	}
	if after == EmojiPending && before != EmojiPending {
		m.armLocked(id, e)
	}
	out := e.session.clone()
	if after.Terminal() {
		m.removeLocked(id)
	}
	return out, nil
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) armLocked(id string, e *entry) {
	e.gen++
	gen := e.gen
	e.timer = m.clock.AfterFunc(m.emojiTimeout, func() { m.expire(id, gen) })
}

func (m *Manager) disarmLocked(e *entry) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (m *Manager) expire(id string, gen uint64) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.gen != gen || e.session.State() != EmojiPending {
		m.mu.Unlock()
		return
	}
	_ = e.session.Apply(Timeout())
	out := e.session.clone()
	m.removeLocked(id)
	m.mu.Unlock()

	m.notifyExpired([]*Session{out})
}

// reap cancels sessions idle past the TTL.
func (m *Manager) reap() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.clock.Now().Add(-m.ttl)
	var expired []*Session
	for id, e := range m.sessions {
		if e.touched.After(cutoff) {
			continue
		}
		e.session.cancel(ReasonIdle)
		expired = append(expired, e.session.clone())
		m.removeLocked(id)
	}
	return expired
}

// Reap cancels idle sessions and reports them through the expire callback.
func (m *Manager) Reap() int {
	expired := m.reap()
	m.notifyExpired(expired)
	return len(expired)
}

// StartReaper reaps idle sessions on every tick until ctx is done or stop is
// called.
func (m *Manager) StartReaper(ctx context.Context, every time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Reap()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (m *Manager) notifyExpired(sessions []*Session) {
	if len(sessions) == 0 {
		return
	}
	m.mu.Lock()
	fn := m.onExpire
	m.mu.Unlock()
	if fn == nil {
		return
	}
	for _, s := range sessions {
		fn(s)
	}
}

func (m *Manager) removeLocked(id string) {
	e, ok := m.sessions[id]
	if !ok {
		return
	}
	m.disarmLocked(e)
	if e.session.PromptID != "" {
		delete(m.byPrompt, e.session.PromptID)
	}
	delete(m.sessions, id)
}
