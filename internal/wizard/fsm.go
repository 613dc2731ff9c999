package wizard

import (
	"errors"
	"strings"

	"moe-bot/internal/settings"
)

var (
	ErrUnexpectedEvent   = errors.New("event not allowed in current state")
	ErrRoleAlreadyBound  = errors.New("role already bound in this session")
	ErrEmojiAlreadyBound = errors.New("emoji already bound in this session")
	ErrEmptyMessage      = errors.New("message content is empty")
)

type State int

const (
	MessagePending State = iota
	ChannelPending
	RolePending
	EmojiPending
	Summary
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case MessagePending:
		return "message_pending"
	case ChannelPending:
		return "channel_pending"
	case RolePending:
		return "role_pending"
	case EmojiPending:
		return "emoji_pending"
	case Summary:
		return "summary"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == Committed || s == Cancelled }

type EventKind int

const (
	EventSubmitMessage EventKind = iota
	EventSelectChannel
	EventSelectRole
	EventCaptureEmoji
	EventAddMore
	EventFinish
	EventCancel
	EventTimeout
)

type Event struct {
	Kind  EventKind
	Value string
}

func SubmitMessage(source string) Event { return Event{Kind: EventSubmitMessage, Value: source} }
func SelectChannel(id string) Event     { return Event{Kind: EventSelectChannel, Value: id} }
func SelectRole(id string) Event        { return Event{Kind: EventSelectRole, Value: id} }
func CaptureEmoji(key string) Event     { return Event{Kind: EventCaptureEmoji, Value: key} }
func AddMore() Event                    { return Event{Kind: EventAddMore} }
func Finish() Event                     { return Event{Kind: EventFinish} }
func Cancel() Event                     { return Event{Kind: EventCancel} }
func Timeout() Event                    { return Event{Kind: EventTimeout} }

// Cancel reasons.
const (
	ReasonOperator = "cancelled"
	ReasonTimeout  = "timeout"
	ReasonIdle     = "idle"
	ReasonReplaced = "replaced"
)

// Plan is what a committed session asks the caller to execute: post the
// message and bind its pairs.
type Plan struct {
	GuildID   string
	ChannelID string
	Source    string
	Pairs     []settings.Pair
}

// Session is one operator's reaction-role wizard. It holds no platform state;
// nothing is persisted until the caller executes the Plan of a committed
// session.
type Session struct {
	ID         string
	GuildID    string
	OperatorID string
	// PromptChannelID and PromptID locate the message showing the wizard.
	PromptChannelID string
	PromptID        string

	state       State
	source      string
	channelID   string
	pendingRole string
	pairs       []settings.Pair
	reason      string
}

func NewSession(id, guildID, operatorID string) *Session {
	return &Session{ID: id, GuildID: guildID, OperatorID: operatorID, state: MessagePending}
}

func (s *Session) State() State        { return s.state }
func (s *Session) Source() string      { return s.source }
func (s *Session) ChannelID() string   { return s.channelID }
func (s *Session) PendingRole() string { return s.pendingRole }
func (s *Session) Reason() string      { return s.reason }
func (s *Session) Pairs() []settings.Pair {
	return append([]settings.Pair(nil), s.pairs...)
}

// Apply feeds one event to the state machine. A rejected event leaves the
// session unchanged.
func (s *Session) Apply(ev Event) error {
	if s.state.Terminal() {
		return ErrUnexpectedEvent
	}
	if ev.Kind == EventCancel {
		s.cancel(ReasonOperator)
		return nil
	}

	switch s.state {
	case MessagePending:
		if ev.Kind != EventSubmitMessage {
			return ErrUnexpectedEvent
		}
		if strings.TrimSpace(ev.Value) == "" {
			return ErrEmptyMessage
		}
		s.source = ev.Value
		s.state = ChannelPending
	case ChannelPending:
		if ev.Kind != EventSelectChannel || ev.Value == "" {
			return ErrUnexpectedEvent
		}
		s.channelID = ev.Value
		s.state = RolePending
	case RolePending:
		if ev.Kind != EventSelectRole || ev.Value == "" {
			return ErrUnexpectedEvent
		}
		for _, p := range s.pairs {
			if p.Role == ev.Value {
				return ErrRoleAlreadyBound
			}
		}
		s.pendingRole = ev.Value
		s.state = EmojiPending
	case EmojiPending:
		switch ev.Kind {
		case EventTimeout:
			s.cancel(ReasonTimeout)
		case EventCaptureEmoji:
			if ev.Value == "" {
				return ErrUnexpectedEvent
			}
			for _, p := range s.pairs {
				if p.Emoji == ev.Value {
					return ErrEmojiAlreadyBound
				}
			}
			s.pairs = append(s.pairs, settings.Pair{Emoji: ev.Value, Role: s.pendingRole})
			s.pendingRole = ""
			s.state = Summary
		default:
			return ErrUnexpectedEvent
		}
	case Summary:
		switch ev.Kind {
		case EventAddMore:
			s.state = RolePending
		case EventFinish:
			s.state = Committed
		default:
			return ErrUnexpectedEvent
		}
	default:
		return ErrUnexpectedEvent
	}
	return nil
}

// Plan returns the work to execute once the session is committed.
func (s *Session) Plan() (Plan, bool) {
	if s.state != Committed {
		return Plan{}, false
	}
	return Plan{GuildID: s.GuildID, ChannelID: s.channelID, Source: s.source, Pairs: s.Pairs()}, true
}

func (s *Session) cancel(reason string) {
	s.state = Cancelled
	s.reason = reason
	s.pendingRole = ""
}

func (s *Session) clone() *Session {
	out := *s
	out.pairs = s.Pairs()
	return &out
}
