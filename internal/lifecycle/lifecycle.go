// Package lifecycle owns the create, edit, and delete sequencing for the
// messages that represent one presence slot.
//
// Deletes always run before sends so a slot never shows two live messages.
// A delete that finds nothing is treated as done. Any other delete failure
// is reported back as a stale handle for the caller to retry later.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/embycord/internal/discord"
)

// Transport is the subset of the Discord client used for message upkeep.
type Transport interface {
	Send(ctx context.Context, channelID string, msg *discord.Message) (discord.Handle, error)
	Edit(ctx context.Context, h discord.Handle, msg *discord.Message) error
	Delete(ctx context.Context, h discord.Handle) error
}

// Handles are the messages owned by one slot.
type Handles struct {
	Live *discord.Handle
	Aux  *discord.Handle
}

// Empty reports whether no message is owned.
func (h Handles) Empty() bool {
	return h.Live == nil && h.Aux == nil
}

// Outgoing is the content to publish. Secondary is optional.
type Outgoing struct {
	Primary   *discord.Message
	Secondary *discord.Message
}

// Result is the outcome of a lifecycle operation.
type Result struct {
	Handles
	// Stale lists handles whose delete failed with something other than
	// not-found. They are no longer owned as live messages.
	Stale []discord.Handle
}

// Observer receives one call per transport request.
type Observer func(op string, err error)

// ///////////////////////////////////////////////
// Manager
// ///////////////////////////////////////////////

// Manager sequences transport calls for a single channel.
type Manager struct {
	transport Transport
	channelID string
	timeout   time.Duration
	logger    *slog.Logger
	observe   Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout bounds each transport call.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver reports every transport call, e.g. to metrics.
func WithObserver(fn Observer) Option {
	return func(m *Manager) { m.observe = fn }
}

// New creates a Manager that publishes into channelID.
func New(transport Transport, channelID string, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		channelID: channelID,
		timeout:   5 * time.Second,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ChannelID returns the channel messages are posted to.
func (m *Manager) ChannelID() string { return m.channelID }

// Replace deletes the old messages and publishes out as fresh ones.
//
// Delete failures never abort the replace. If the primary send fails the
// returned handles are empty and the error is returned alongside any stale
// handles. A failed secondary send only costs the aux message.
func (m *Manager) Replace(ctx context.Context, old Handles, out Outgoing) (Result, error) {
	res := Result{Stale: m.clear(ctx, old)}
	if out.Primary == nil {
		return res, errors.New("lifecycle: nothing to send")
	}

	live, err := m.send(ctx, out.Primary)
	if err != nil {
		return res, fmt.Errorf("sending message: %w", err)
	}
	res.Live = &live

	if out.Secondary != nil {
		aux, err := m.send(ctx, out.Secondary)
		if err != nil {
			m.logger.Warn("failed to send secondary message", "channel", m.channelID, "error", err)
		} else {
			res.Aux = &aux
		}
	}
	return res, nil
}

// EditOrReplace edits the live message in place, sending a fresh one when
// there is none or it has been removed. Any aux message is deleted since
// edited slots carry a single message.
//
// On a failed edit (other than not-found) the old live handle is kept and
// the error is returned.
func (m *Manager) EditOrReplace(ctx context.Context, old Handles, out Outgoing) (Result, error) {
	var res Result
	if out.Primary == nil {
		return Result{Handles: old}, errors.New("lifecycle: nothing to send")
	}
	if old.Aux != nil {
		if stale := m.delete(ctx, *old.Aux); stale != nil {
			res.Stale = append(res.Stale, *stale)
		}
	}

	if old.Live != nil {
		err := m.edit(ctx, *old.Live, out.Primary)
		switch {
		case err == nil:
			live := *old.Live
			res.Live = &live
			return res, nil
		case errors.Is(err, discord.ErrNotFound):
			m.logger.Debug("live message gone, sending a new one", "handle", old.Live.String())
		default:
			res.Live = old.Live
			return res, fmt.Errorf("editing message: %w", err)
		}
	}

	live, err := m.send(ctx, out.Primary)
	if err != nil {
		return res, fmt.Errorf("sending message: %w", err)
	}
	res.Live = &live
	return res, nil
}

// Clear deletes every owned message.
func (m *Manager) Clear(ctx context.Context, old Handles) Result {
	return Result{Stale: m.clear(ctx, old)}
}

// Retry re-attempts deletes of stale handles and returns those still failing.
func (m *Manager) Retry(ctx context.Context, stale []discord.Handle) []discord.Handle {
	var remaining []discord.Handle
	for _, h := range stale {
		if s := m.delete(ctx, h); s != nil {
			remaining = append(remaining, *s)
		}
	}
	return remaining
}

// ///////////////////////////////////////////////
// Transport Calls
// ///////////////////////////////////////////////

// clear deletes aux before live.
func (m *Manager) clear(ctx context.Context, old Handles) []discord.Handle {
	var stale []discord.Handle
	for _, h := range []*discord.Handle{old.Aux, old.Live} {
		if h == nil {
			continue
		}
		if s := m.delete(ctx, *h); s != nil {
			stale = append(stale, *s)
		}
	}
	return stale
}

// delete returns h when it is still possibly present.
func (m *Manager) delete(ctx context.Context, h discord.Handle) *discord.Handle {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.transport.Delete(cctx, h)
	m.record("delete", err)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, discord.ErrNotFound):
		m.logger.Debug("message already deleted", "handle", h.String())
		return nil
	default:
		m.logger.Warn("failed to delete message", "handle", h.String(), "error", err)
		return &h
	}
}

func (m *Manager) send(ctx context.Context, msg *discord.Message) (discord.Handle, error) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	h, err := m.transport.Send(cctx, m.channelID, msg)
	m.record("send", err)
	return h, err
}

func (m *Manager) edit(ctx context.Context, h discord.Handle, msg *discord.Message) error {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.transport.Edit(cctx, h, msg)
	m.record("edit", err)
	return err
}

func (m *Manager) record(op string, err error) {
	if m.observe != nil {
		m.observe(op, err)
	}
}
