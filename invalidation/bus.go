package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "goguard.invalidate"

var (
	// ErrPartialKey is returned for a message naming an organization without
	// a user. Organization-wide invalidation is not supported.
	ErrPartialKey = errors.New("invalidation requires user and organization")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("invalidation bus closed")
)

// Invalidator drops cached permissions. *goGuard.Engine implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, organizationID string) error
	Clear(ctx context.Context) error
}

// Message is the wire payload.
type Message struct {
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// All reports whether m clears every key.
func (m Message) All() bool {
	return m.UserID == "" && m.OrganizationID == ""
}

func (m Message) validate() error {
	if m.All() {
		return nil
	}
	if m.UserID == "" || m.OrganizationID == "" {
		return ErrPartialKey
	}
	return nil
}

// Connect dials a NATS server with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// ListenerOptions configure a [Listener].
type ListenerOptions struct {
	Subject string
	Logger  zerolog.Logger
	// Timeout bounds each Invalidate or Clear call. Defaults to 5s.
	Timeout time.Duration
}

// Listener applies invalidation messages to an [Invalidator].
type Listener struct {
	sub     *nats.Subscription
	target  Invalidator
	log     zerolog.Logger
	timeout time.Duration

	applied  atomic.Uint64
	rejected atomic.Uint64
}

// Listen subscribes to opts.Subject on nc.
func Listen(nc *nats.Conn, target Invalidator, opts ListenerOptions) (*Listener, error) {
	if nc == nil || target == nil {
		return nil, errors.New("listener requires a connection and an invalidator")
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	l := &Listener{
		target:  target,
		log:     opts.Logger.With().Str("component", "invalidation").Str("subject", opts.Subject).Logger(),
		timeout: opts.Timeout,
	}

	sub, err := nc.Subscribe(opts.Subject, l.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", opts.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	l.sub = sub
	return l, nil
}

func (l *Listener) handle(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		l.rejected.Add(1)
		l.log.Warn().Err(err).Msg("dropping undecodable invalidation")
		return
	}
	if err := m.validate(); err != nil {
		l.rejected.Add(1)
		l.log.Warn().Err(err).Str("organization_id", m.OrganizationID).Msg("dropping invalidation")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var err error
	if m.All() {
		err = l.target.Clear(ctx)
	} else {
		err = l.target.Invalidate(ctx, m.UserID, m.OrganizationID)
	}
	if err != nil {
		l.rejected.Add(1)
		l.log.Error().Err(err).Str("user_id", m.UserID).Str("organization_id", m.OrganizationID).Msg("invalidation failed")
		return
	}
	l.applied.Add(1)
	l.log.Debug().Str("user_id", m.UserID).Str("organization_id", m.OrganizationID).Msg("invalidation applied")
}

// Applied returns how many messages were applied.
func (l *Listener) Applied() uint64 { return l.applied.Load() }

// Rejected returns how many messages were dropped or failed.
func (l *Listener) Rejected() uint64 { return l.rejected.Load() }

// Close unsubscribes. The connection stays open.
func (l *Listener) Close() error {
	if l == nil || l.sub == nil {
		return nil
	}
	return l.sub.Unsubscribe()
}

// Publisher announces invalidations.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher returns a publisher on subject, or [DefaultSubject] when empty.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Invalidate announces that one key changed.
func (p *Publisher) Invalidate(ctx context.Context, userID, organizationID string) error {
	if userID == "" || organizationID == "" {
		return ErrPartialKey
	}
	return p.publish(ctx, Message{UserID: userID, OrganizationID: organizationID})
}

// Clear announces that every key changed.
func (p *Publisher) Clear(ctx context.Context) error {
	return p.publish(ctx, Message{})
}

func (p *Publisher) publish(ctx context.Context, m Message) error {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return p.nc.Flush()
	}
	return p.nc.FlushWithContext(ctx)
}
