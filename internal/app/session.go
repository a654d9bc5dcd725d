// Package app contains the top-level orchestration of a chat client: presence,
// private messages and the routing of signals into the peer link manager.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/1ureka/sharelink/internal/media"
	"github.com/1ureka/sharelink/internal/peerlink"
	"github.com/1ureka/sharelink/internal/presence"
	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

var (
	// ErrNoPartner is returned by operations that need a selected partner.
	ErrNoPartner = errors.New("no conversation partner selected")

	// ErrUnknownUser is returned when selecting someone who is not online.
	ErrUnknownUser = errors.New("user is not online")
)

// disconnecter is implemented by buses that report transport loss.
type disconnecter interface {
	OnDisconnect(fn func())
}

// SessionConfig wires a Session to its collaborators. Sink, OnUsers and
// OnMessage may be nil.
type SessionConfig struct {
	Bus      signaling.Bus
	Username string
	Source   media.Source
	NewLink  peerlink.LinkFactory
	Sink     peerlink.Sink
	Media    media.Request

	// OnUsers runs with the active users, the local user excluded, whenever
	// the server republishes the list.
	OnUsers func(users []string)

	// OnMessage runs for every CHAT or FILE envelope received.
	OnMessage func(env signaling.Envelope)
}

// Session is one logged-in chat client. It owns the signaling channel and the
// peer link manager, and enforces the partner switch contract: the active link
// is stopped before another partner is selected.
type Session struct {
	bus     signaling.Bus
	user    string
	channel *signaling.Channel
	manager *peerlink.Manager
	media   media.Request

	onUsers   func([]string)
	onMessage func(signaling.Envelope)

	mu      sync.Mutex
	users   []string
	partner string
	history []signaling.Envelope
	started bool
	closed  bool
}

// NewSession returns a Session for cfg.Username. Start logs it in.
func NewSession(cfg SessionConfig) *Session {
	channel := signaling.NewChannel(cfg.Bus, cfg.Username)
	return &Session{
		bus:     cfg.Bus,
		user:    cfg.Username,
		channel: channel,
		manager: peerlink.NewManager(peerlink.Config{
			Signaler: channel,
			Source:   cfg.Source,
			NewLink:  cfg.NewLink,
			Sink:     cfg.Sink,
		}),
		media:     cfg.Media,
		onUsers:   cfg.OnUsers,
		onMessage: cfg.OnMessage,
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start subscribes the session topics and announces the user with JOIN.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.bus.Subscribe(signaling.PublicTopic, s.handleUsers); err != nil {
		return fmt.Errorf("subscribe user list: %w", err)
	}
	if err := s.bus.Subscribe(signaling.MessagesTopic(s.user), s.handleMessage); err != nil {
		return fmt.Errorf("subscribe messages: %w", err)
	}
	if err := s.channel.Subscribe(s.handleSignal); err != nil {
		return fmt.Errorf("subscribe signals: %w", err)
	}

	if d, ok := s.bus.(disconnecter); ok {
		d.OnDisconnect(s.handleDisconnect)
	}

	if err := s.publish(signaling.JoinDestination, signaling.Envelope{Type: signaling.KindJoin}); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	util.LogInfo("joined as %s", s.user)
	return nil
}

// Close stops any share, announces LEAVE and drops the subscriptions. The bus
// itself is left to its owner.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.manager.Stop()

	var errs []error
	if err := s.publish(signaling.JoinDestination, signaling.Envelope{Type: signaling.KindLeave}); err != nil {
		errs = append(errs, fmt.Errorf("leave: %w", err))
	}
	if err := s.channel.Unsubscribe(); err != nil {
		errs = append(errs, err)
	}
	if err := s.bus.Unsubscribe(signaling.MessagesTopic(s.user)); err != nil {
		errs = append(errs, err)
	}
	if err := s.bus.Unsubscribe(signaling.PublicTopic); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// User returns the local user name.
func (s *Session) User() string { return s.user }

// Users returns the last known active users, the local user excluded.
func (s *Session) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users)
}

// Partner returns the selected conversation partner.
func (s *Session) Partner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

// History returns every CHAT and FILE envelope sent or received, oldest first.
func (s *Session) History() []signaling.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Link returns the peer link manager.
func (s *Session) Link() *peerlink.Manager { return s.manager }

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// SelectPartner makes name the conversation partner. A link with anyone else
// is stopped first.
func (s *Session) SelectPartner(name string) error {
	s.mu.Lock()
	online := slices.Contains(s.users, name)
	s.mu.Unlock()
	if !online {
		return fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}

	if p := s.manager.Partner(); p != "" && p != name {
		util.LogInfo("switching from %s to %s, stopping the active link", p, name)
		s.manager.Stop()
	}

	s.mu.Lock()
	s.partner = name
	s.mu.Unlock()
	return nil
}

// SendChat sends a text message to the partner.
func (s *Session) SendChat(text string) error {
	if text == "" {
		return errors.New("empty message")
	}
	return s.sendMessage(signaling.KindChat, text)
}

// SendFile sends a link to an already uploaded file to the partner.
func (s *Session) SendFile(url string) error {
	if url == "" {
		return errors.New("empty file url")
	}
	return s.sendMessage(signaling.KindFile, url)
}

// StartShare starts sharing local media with the partner.
func (s *Session) StartShare(ctx context.Context) error {
	partner := s.Partner()
	if partner == "" {
		return ErrNoPartner
	}
	return s.manager.StartLocalShare(ctx, partner, s.media)
}

// StopShare ends the active link, whoever started it.
func (s *Session) StopShare() {
	s.manager.Stop()
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

func (s *Session) handleUsers(body []byte) {
	users, err := presence.DecodeUsers(body)
	if err != nil {
		util.LogWarning("bad user list: %v", err)
		return
	}
	users = slices.DeleteFunc(users, func(u string) bool { return u == s.user })

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	util.LogDebug("online: %v", users)
	if s.onUsers != nil {
		s.onUsers(slices.Clone(users))
	}
}

func (s *Session) handleMessage(body []byte) {
	env, err := signaling.DecodeEnvelope(body)
	if err != nil {
		util.LogWarning("dropping message: %v", err)
		return
	}
	if env.Recipient != s.user || (env.Type != signaling.KindChat && env.Type != signaling.KindFile) {
		util.LogDebug("dropping %s envelope from %s addressed to %q", env.Type, env.Sender, env.Recipient)
		return
	}

	s.mu.Lock()
	s.history = append(s.history, env)
	s.mu.Unlock()

	if s.onMessage != nil {
		s.onMessage(env)
	}
}

func (s *Session) handleSignal(env signaling.Envelope) {
	if err := s.manager.HandleInboundSignal(env); err != nil {
		switch {
		case errors.Is(err, peerlink.ErrState):
			util.LogDebug("signal from %s discarded: %v", env.Sender, err)
		default:
			util.LogWarning("signal from %s: %v", env.Sender, err)
		}
	}
}

func (s *Session) handleDisconnect() {
	util.LogWarning("signaling connection lost, stopping the active link")
	s.manager.Stop()
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

func (s *Session) sendMessage(kind signaling.Kind, content string) error {
	partner := s.Partner()
	if partner == "" {
		return ErrNoPartner
	}

	now := time.Now().UTC()
	env := signaling.Envelope{
		Recipient: partner,
		Type:      kind,
		Content:   content,
		Timestamp: &now,
	}
	if err := s.publish(signaling.MessagesTopic(partner), env); err != nil {
		return err
	}

	env.Sender = s.user
	s.mu.Lock()
	s.history = append(s.history, env)
	s.mu.Unlock()
	return nil
}

// publish stamps env with the local user and publishes it on topic.
func (s *Session) publish(topic string, env signaling.Envelope) error {
	env.Sender = s.user
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.bus.Publish(topic, data)
}
