// Package presence mirrors watched users' playback into chat messages.
//
// A Reconciler is driven by repeated calls to Tick. Each tick lists the
// media server's sessions, moves every watched user between Idle and
// Active, and keeps exactly one shared idle placeholder visible while no
// one is playing. All state lives in a Store owned by the Reconciler.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/emby"
	"tools.zach/dev/embycord/internal/lifecycle"
	"tools.zach/dev/embycord/internal/media"
)

// ErrSourceUnavailable wraps session listing failures. A tick that returns
// it left all state untouched.
var ErrSourceUnavailable = errors.New("presence: session source unavailable")

// Source lists the media server's current sessions.
type Source interface {
	ListSessions(ctx context.Context) ([]emby.Session, error)
}

// Lifecycle publishes and removes messages. Satisfied by *lifecycle.Manager.
type Lifecycle interface {
	Replace(ctx context.Context, old lifecycle.Handles, out lifecycle.Outgoing) (lifecycle.Result, error)
	EditOrReplace(ctx context.Context, old lifecycle.Handles, out lifecycle.Outgoing) (lifecycle.Result, error)
	Clear(ctx context.Context, old lifecycle.Handles) lifecycle.Result
	Retry(ctx context.Context, stale []discord.Handle) []discord.Handle
}

// ArtworkResolver turns payload images into attachments. Satisfied by
// *artwork.Resolver.
type ArtworkResolver interface {
	Images(ctx context.Context, p media.Payload) (primary, secondary *discord.File)
	Asset(name string) (discord.File, error)
}

// Metrics receives reconciliation measurements. Methods are called from
// the goroutine running Tick, never from per-user workers.
type Metrics interface {
	TickDone(d time.Duration, err error)
	Rendered(k media.Kind)
	Suppressed()
	ActiveUsers(n int)
}

type nopMetrics struct{}

func (nopMetrics) TickDone(time.Duration, error) {}
func (nopMetrics) Rendered(media.Kind)           {}
func (nopMetrics) Suppressed()                   {}
func (nopMetrics) ActiveUsers(int)               {}

// Options configures a Reconciler. Zero values fall back to defaults.
type Options struct {
	// Watch reports whether a lowercased username is mirrored. Nil watches
	// nobody.
	Watch func(user string) bool
	// Debounce is the minimum age before an unchanged item is re-rendered.
	Debounce time.Duration
	// RefreshKinds are re-rendered once the debounce window passes.
	RefreshKinds map[media.Kind]bool
	Renderer     *media.Renderer
	// MaxParallel bounds concurrent per-user work. Defaults to 4.
	MaxParallel int
	// CallTimeout bounds the session listing. Defaults to 5s.
	CallTimeout time.Duration
	// IdleAsset names the placeholder image. Empty posts a text card.
	IdleAsset   string
	ClearOnExit bool
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     Metrics
	Tracer      trace.Tracer
}

// ///////////////////////////////////////////////
// Reconciler
// ///////////////////////////////////////////////

// Reconciler owns the presence store. Tick, SetWatch, and Shutdown must be
// called from a single goroutine.
type Reconciler struct {
	src   Source
	mgr   Lifecycle
	art   ArtworkResolver
	store *Store
	opts  Options
}

// NewReconciler wires the collaborators together.
func NewReconciler(src Source, mgr Lifecycle, art ArtworkResolver, opts Options) *Reconciler {
	if opts.Watch == nil {
		opts.Watch = func(string) bool { return false }
	}
	if opts.Renderer == nil {
		opts.Renderer = &media.Renderer{}
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("tools.zach/dev/embycord/internal/presence")
	}
	return &Reconciler{src: src, mgr: mgr, art: art, store: NewStore(), opts: opts}
}

// Store exposes the presence state for inspection.
func (r *Reconciler) Store() *Store { return r.store }

// SetWatch swaps the watch predicate. Users no longer watched are cleared
// on the next tick.
func (r *Reconciler) SetWatch(fn func(user string) bool) {
	if fn == nil {
		fn = func(string) bool { return false }
	}
	r.opts.Watch = fn
}

// observation is a watched user's playback this tick. A held observation
// is a suppressed item: the user's slot is left exactly as it was.
type observation struct {
	itemID  string
	payload media.Payload
	held    bool
}

// outcome is the result of one user's transition.
type outcome struct {
	entry    Entry
	rendered bool
}

// Tick runs one reconciliation cycle.
func (r *Reconciler) Tick(ctx context.Context) (err error) {
	tickID := uuid.NewString()
	log := r.opts.Logger.With("tick", tickID)
	start := r.opts.Now()

	ctx, span := r.opts.Tracer.Start(ctx, "presence.tick", trace.WithAttributes(attribute.String("tick.id", tickID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.opts.Metrics.TickDone(r.opts.Now().Sub(start), err)
	}()

	sctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	sessions, err := r.src.ListSessions(sctx)
	cancel()
	if err != nil {
		log.Warn("session listing failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	seen := r.classify(sessions)
	users := r.store.Users()
	for u := range seen {
		if _, known := r.store.entries[u]; !known {
			users = append(users, u)
		}
	}

	entries := make([]Entry, len(users))
	for i, u := range users {
		entries[i] = r.store.Get(u)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.MaxParallel)
	results := make([]outcome, len(users))
	for i := range users {
		i := i
		g.Go(func() error {
			results[i] = r.safeTransition(ctx, log, entries[i], seen[users[i]])
			return nil
		})
	}
	g.Wait()

	for i, u := range users {
		e := results[i].entry
		if results[i].rendered {
			r.opts.Metrics.Rendered(e.Kind)
		}
		if e.State() == Idle && len(e.Stale) == 0 && !r.opts.Watch(u) {
			r.store.Delete(u)
			continue
		}
		r.store.Set(u, e)
	}

	active := r.store.ActiveCount()
	r.opts.Metrics.ActiveUsers(active)
	span.SetAttributes(attribute.Int("presence.active", active), attribute.Int("presence.sessions", len(sessions)))

	r.reconcileIdle(ctx, log, active)
	log.Debug("tick complete", "sessions", len(sessions), "active", active)
	return nil
}

// classify picks each watched user's renderable item. The first session
// that renders wins; a suppressed item holds the user's current state
// unless a later session of theirs renders.
func (r *Reconciler) classify(sessions []emby.Session) map[string]*observation {
	seen := make(map[string]*observation)
	for _, s := range sessions {
		user := strings.ToLower(strings.TrimSpace(s.UserName))
		if user == "" || !s.Playing() || !r.opts.Watch(user) {
			continue
		}
		if obs := seen[user]; obs != nil && !obs.held {
			continue
		}
		p, ok := r.opts.Renderer.Render(*s.NowPlayingItem, s.PlayState)
		if !ok {
			r.opts.Metrics.Suppressed()
			if seen[user] == nil {
				seen[user] = &observation{itemID: s.NowPlayingItem.ID, held: true}
			}
			continue
		}
		seen[user] = &observation{itemID: s.NowPlayingItem.ID, payload: p}
	}
	return seen
}

// safeTransition runs transition, keeping the entry unchanged on panic.
func (r *Reconciler) safeTransition(ctx context.Context, log *slog.Logger, e Entry, obs *observation) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("presence transition panic", "user", e.User, "error", rec)
			out = outcome{entry: e}
		}
	}()
	return r.transition(ctx, log, e, obs)
}

// transition computes a user's next entry. obs is nil when the user is
// not playing anything. Stale deletes are retried on every other path,
// debounced or not.
func (r *Reconciler) transition(ctx context.Context, log *slog.Logger, e Entry, obs *observation) outcome {
	if obs != nil && obs.held {
		log.Debug("holding presence for suppressed item", "user", e.User, "item", obs.itemID)
		return outcome{entry: e}
	}

	ctx, span := r.opts.Tracer.Start(ctx, "presence.user", trace.WithAttributes(
		attribute.String("user", e.User),
		attribute.String("state", e.State().String()),
	))
	defer span.End()

	if len(e.Stale) > 0 {
		e.Stale = r.mgr.Retry(ctx, e.Stale)
	}

	switch e.State() {
	case Idle:
		if obs == nil {
			return outcome{entry: e}
		}
		return r.publish(ctx, log, e, obs)

	case Active:
		if obs == nil {
			res := r.mgr.Clear(ctx, e.Handles())
			log.Info("user stopped playing", "user", e.User, "item", e.ItemID)
			e = e.clearItem()
			e.Stale = append(e.Stale, res.Stale...)
			return outcome{entry: e}
		}
		if obs.itemID != e.ItemID {
			return r.publish(ctx, log, e, obs)
		}
		if r.opts.Now().Sub(e.UpdatedAt) < r.opts.Debounce {
			return outcome{entry: e}
		}
		if !r.opts.RefreshKinds[obs.payload.Kind] {
			return outcome{entry: e}
		}
		return r.publish(ctx, log, e, obs)
	}
	return outcome{entry: e}
}

// publish renders obs into the user's slot.
func (r *Reconciler) publish(ctx context.Context, log *slog.Logger, e Entry, obs *observation) outcome {
	p := obs.payload
	primary, secondary := r.art.Images(ctx, p)
	out := compose(p, primary, secondary)

	editable := p.Mode == media.ModeEdit
	var (
		res lifecycle.Result
		err error
	)
	if editable && e.Editable && e.Live != nil {
		res, err = r.mgr.EditOrReplace(ctx, e.Handles(), out)
	} else {
		res, err = r.mgr.Replace(ctx, e.Handles(), out)
	}
	e.Stale = append(e.Stale, res.Stale...)

	if err != nil {
		log.Warn("failed to publish presence", "user", e.User, "item", obs.itemID, "error", err)
		if res.Live == nil {
			return outcome{entry: e.clearItem()}
		}
		e.Live, e.Aux = res.Live, res.Aux
		return outcome{entry: e}
	}

	if e.ItemID != obs.itemID {
		log.Info("user now playing", "user", e.User, "item", obs.itemID, "kind", p.Kind.String(), "title", p.Title)
	}
	e.ItemID = obs.itemID
	e.Kind = p.Kind
	e.UpdatedAt = r.opts.Now()
	e.Live, e.Aux = res.Live, res.Aux
	e.Editable = editable
	return outcome{entry: e, rendered: true}
}

// ///////////////////////////////////////////////
// Idle Placeholder
// ///////////////////////////////////////////////

// reconcileIdle shows the placeholder iff nobody is active. It runs after
// every per-user transition of the tick.
func (r *Reconciler) reconcileIdle(ctx context.Context, log *slog.Logger, active int) {
	if stale := r.store.IdleStale(); len(stale) > 0 {
		r.store.SetIdleStale(r.mgr.Retry(ctx, stale))
	}

	idle := r.store.Idle()
	switch {
	case active == 0 && idle == nil:
		res, err := r.mgr.Replace(ctx, lifecycle.Handles{}, lifecycle.Outgoing{Primary: idleMessage(r.idleImage(log))})
		if err != nil {
			log.Warn("failed to post idle placeholder", "error", err)
			return
		}
		r.store.SetIdle(res.Live)
		log.Info("posted idle placeholder", "handle", res.Live.String())

	case active > 0 && idle != nil:
		res := r.mgr.Clear(ctx, lifecycle.Handles{Live: idle})
		r.store.SetIdle(nil)
		r.store.SetIdleStale(append(r.store.IdleStale(), res.Stale...))
		log.Debug("removed idle placeholder", "handle", idle.String())
	}
}

func (r *Reconciler) idleImage(log *slog.Logger) *discord.File {
	if r.opts.IdleAsset == "" {
		return nil
	}
	f, err := r.art.Asset(r.opts.IdleAsset)
	if err != nil {
		log.Warn("idle asset unavailable", "asset", r.opts.IdleAsset, "error", err)
		return nil
	}
	return &f
}

// ///////////////////////////////////////////////
// Shutdown
// ///////////////////////////////////////////////

// Shutdown deletes every owned message when ClearOnExit is set. Otherwise
// messages are left for the next startup purge.
func (r *Reconciler) Shutdown(ctx context.Context) {
	if !r.opts.ClearOnExit {
		return
	}
	log := r.opts.Logger
	for _, u := range r.store.Users() {
		e := r.store.Get(u)
		stale := r.mgr.Retry(ctx, e.Stale)
		stale = append(stale, r.mgr.Clear(ctx, e.Handles()).Stale...)
		e = e.clearItem()
		e.Stale = stale
		r.store.Set(u, e)
	}

	pending := r.store.IdleStale()
	if idle := r.store.Idle(); idle != nil {
		pending = append(pending, *idle)
		r.store.SetIdle(nil)
	}
	r.store.SetIdleStale(r.mgr.Retry(ctx, pending))
	log.Info("cleared presence messages on exit")
}
