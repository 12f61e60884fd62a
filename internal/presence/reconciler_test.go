package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/emby"
	"tools.zach/dev/embycord/internal/lifecycle"
	"tools.zach/dev/embycord/internal/media"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

type fakeSource struct {
	sessions []emby.Session
	err      error
}

func (f *fakeSource) ListSessions(context.Context) ([]emby.Session, error) {
	return f.sessions, f.err
}

// transport records calls in order and is safe for concurrent use.
type transport struct {
	mu      sync.Mutex
	calls   []string
	next    int
	failDel map[string]error
	failSnd error
	sent    []*discord.Message
}

func newTransport() *transport {
	return &transport{failDel: map[string]error{}}
}

func (t *transport) Send(_ context.Context, ch string, msg *discord.Message) (discord.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSnd != nil {
		t.calls = append(t.calls, "send!")
		return discord.Handle{}, t.failSnd
	}
	t.next++
	id := fmt.Sprintf("m%d", t.next)
	t.calls = append(t.calls, "send "+id)
	t.sent = append(t.sent, msg)
	return discord.Handle{ChannelID: ch, MessageID: id}, nil
}

func (t *transport) Edit(_ context.Context, h discord.Handle, _ *discord.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "edit "+h.MessageID)
	return nil
}

func (t *transport) Delete(_ context.Context, h discord.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "delete "+h.MessageID)
	return t.failDel[h.MessageID]
}

// take returns and resets the recorded calls.
func (t *transport) take() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.calls
	t.calls = nil
	return c
}

type fakeArt struct{}

func (fakeArt) Images(context.Context, media.Payload) (*discord.File, *discord.File) {
	return nil, nil
}

func (fakeArt) Asset(name string) (discord.File, error) {
	return discord.File{Name: name, ContentType: "image/png", Data: []byte("png")}, nil
}

// countingMetrics is unsynchronized; the reconciler reports metrics from
// the ticking goroutine only.
type countingMetrics struct {
	ticks, failures, renders, suppressed, active int
}

func (m *countingMetrics) TickDone(_ time.Duration, err error) {
	m.ticks++
	if errors.Is(err, ErrSourceUnavailable) {
		m.failures++
	}
}
func (m *countingMetrics) Rendered(media.Kind) { m.renders++ }
func (m *countingMetrics) Suppressed()         { m.suppressed++ }
func (m *countingMetrics) ActiveUsers(n int)   { m.active = n }

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	src     *fakeSource
	tr      *transport
	clock   *clock
	metrics *countingMetrics
	rec     *Reconciler
}

func watchOnly(users ...string) func(string) bool {
	set := map[string]bool{}
	for _, u := range users {
		set[u] = true
	}
	return func(u string) bool { return set[u] }
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		src:     &fakeSource{},
		tr:      newTransport(),
		clock:   &clock{t: time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)},
		metrics: &countingMetrics{},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		Watch:        watchOnly("tim", "jeffery"),
		Debounce:     10 * time.Second,
		RefreshKinds: map[media.Kind]bool{media.KindAudioBook: true},
		Renderer:     &media.Renderer{RestrictedRatings: []string{"Adult"}},
		IdleAsset:    "Nothing_Playing.png",
		Now:          h.clock.now,
		Logger:       quiet,
		Metrics:      h.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}
	mgr := lifecycle.New(h.tr, "T", lifecycle.WithLogger(quiet))
	h.rec = NewReconciler(h.src, mgr, fakeArt{}, opts)
	return h
}

func (h *harness) play(sessions ...emby.Session) { h.src.sessions = sessions }

func (h *harness) tick(t *testing.T) []string {
	t.Helper()
	if err := h.rec.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return h.tr.take()
}

// assertExclusive checks the idle placeholder exists iff nobody is active.
func (h *harness) assertExclusive(t *testing.T) {
	t.Helper()
	active := h.rec.Store().ActiveCount()
	idle := h.rec.Store().Idle()
	if (idle != nil) != (active == 0) {
		t.Errorf("idle=%v with %d active users", idle, active)
	}
}

func playing(user, id, kind string) emby.Session {
	return emby.Session{
		UserName:       user,
		NowPlayingItem: &emby.Item{ID: id, Type: kind, Name: "Item " + id},
	}
}

func rated(s emby.Session, rating string) emby.Session {
	s.NowPlayingItem.OfficialRating = rating
	return s
}

func idleSession(user string) emby.Session {
	return emby.Session{UserName: user}
}

// ///////////////////////////////////////////////
// Scenario
// ///////////////////////////////////////////////

func TestScenario_StartDebounceStop(t *testing.T) {
	h := newHarness(t, nil)

	h.play(playing("Tim", "A", "Movie"))
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"send m1"}) {
		t.Fatalf("tick 1 calls = %v, want [send m1]", calls)
	}
	if e := h.rec.Store().Get("tim"); e.ItemID != "A" || e.Live == nil || e.Live.MessageID != "m1" {
		t.Fatalf("after tick 1 entry = %+v", e)
	}
	h.assertExclusive(t)

	h.clock.advance(5 * time.Second)
	if calls := h.tick(t); len(calls) != 0 {
		t.Fatalf("tick 2 calls = %v, want none", calls)
	}

	h.clock.advance(10 * time.Second)
	h.play()
	calls := h.tick(t)
	if !reflect.DeepEqual(calls, []string{"delete m1", "send m2"}) {
		t.Fatalf("tick 3 calls = %v, want [delete m1 send m2]", calls)
	}
	e := h.rec.Store().Get("tim")
	if e.ItemID != "" || e.Live != nil {
		t.Errorf("tim still active: %+v", e)
	}
	if idle := h.rec.Store().Idle(); idle == nil || idle.MessageID != "m2" {
		t.Errorf("idle = %v, want m2", idle)
	}
	h.assertExclusive(t)

	if h.metrics.ticks != 3 || h.metrics.renders != 1 || h.metrics.active != 0 {
		t.Errorf("metrics = %+v", h.metrics)
	}
}

// ///////////////////////////////////////////////
// Properties
// ///////////////////////////////////////////////

func TestDebounce(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "B", "AudioBook"))
	h.tick(t)

	for _, step := range []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second} {
		h.clock.advance(step)
		if calls := h.tick(t); len(calls) != 0 {
			t.Fatalf("within debounce calls = %v, want none", calls)
		}
	}

	h.clock.advance(2 * time.Second)
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"edit m1"}) {
		t.Fatalf("refresh calls = %v, want [edit m1]", calls)
	}
	if got := h.rec.Store().Get("tim").UpdatedAt; !got.Equal(h.clock.now()) {
		t.Errorf("UpdatedAt = %v, want %v", got, h.clock.now())
	}
}

func TestNoRefreshForReplaceKinds(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.clock.advance(time.Minute)
	if calls := h.tick(t); len(calls) != 0 {
		t.Errorf("unchanged movie past debounce calls = %v, want none", calls)
	}
}

func TestIdempotentIdle(t *testing.T) {
	h := newHarness(t, nil)

	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"send m1"}) {
		t.Fatalf("first idle tick calls = %v", calls)
	}
	for i := 0; i < 3; i++ {
		h.clock.advance(10 * time.Second)
		if calls := h.tick(t); len(calls) != 0 {
			t.Fatalf("repeat idle tick %d calls = %v, want none", i, calls)
		}
	}

	msg := h.tr.sent[0]
	if len(msg.Embeds) != 1 || msg.Embeds[0].Title != idleTitle {
		t.Errorf("idle embed = %+v", msg.Embeds)
	}
	if len(msg.Files) != 1 || msg.Files[0].Name != "Nothing_Playing.png" {
		t.Errorf("idle files = %+v", msg.Files)
	}
}

func TestIdleRemovedWhenUserStarts(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t)

	h.play(playing("jeffery", "E1", "Episode"))
	calls := h.tick(t)
	if !reflect.DeepEqual(calls, []string{"send m2", "delete m1"}) {
		t.Fatalf("calls = %v, want user send before idle delete", calls)
	}
	h.assertExclusive(t)
}

func TestMutualExclusionAcrossTicks(t *testing.T) {
	h := newHarness(t, nil)
	steps := [][]emby.Session{
		nil,
		{playing("tim", "A", "Movie")},
		{playing("tim", "A", "Movie"), playing("jeffery", "E1", "Episode")},
		{playing("jeffery", "E2", "Episode")},
		{idleSession("tim"), idleSession("jeffery")},
		{playing("tim", "S", "Audio")},
		nil,
	}
	for i, sessions := range steps {
		h.play(sessions...)
		h.clock.advance(11 * time.Second)
		h.tick(t)
		t.Run(fmt.Sprintf("step%d", i), h.assertExclusive)
	}
}

func TestReplaceAtomicity(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.clock.advance(time.Second)
	h.play(playing("tim", "B", "Movie"))
	calls := h.tick(t)
	if !reflect.DeepEqual(calls, []string{"delete m1", "send m2"}) {
		t.Fatalf("calls = %v, want delete before send", calls)
	}
	e := h.rec.Store().Get("tim")
	if e.ItemID != "B" || e.Live.MessageID != "m2" || e.Aux != nil || len(e.Stale) != 0 {
		t.Errorf("entry = %+v", e)
	}
}

func TestSuppressedMovie(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t) // idle placeholder

	h.play(rated(playing("tim", "X", "Movie"), "Adult"))
	if calls := h.tick(t); len(calls) != 0 {
		t.Fatalf("suppressed movie calls = %v, want none", calls)
	}
	if e := h.rec.Store().Get("tim"); e.State() != Idle {
		t.Errorf("state = %v, want idle", e.State())
	}
	if h.metrics.suppressed != 1 {
		t.Errorf("suppressed = %d, want 1", h.metrics.suppressed)
	}
}

func TestSuppressedMovieKeepsPrevious(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.play(rated(playing("tim", "X", "Movie"), "adult"))
	h.clock.advance(time.Minute)
	if calls := h.tick(t); len(calls) != 0 {
		t.Fatalf("calls = %v, want none while suppressed", calls)
	}
	e := h.rec.Store().Get("tim")
	if e.ItemID != "A" || e.Live == nil || e.Live.MessageID != "m1" {
		t.Errorf("entry = %+v, want A on m1", e)
	}
	if h.rec.Store().Idle() != nil {
		t.Error("idle placeholder posted for a held user")
	}
	h.assertExclusive(t)

	h.play()
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"delete m1", "send m2"}) {
		t.Errorf("calls after stop = %v, want clear then idle placeholder", calls)
	}
}

func TestSuppressedSessionYieldsToRenderable(t *testing.T) {
	h := newHarness(t, nil)
	h.play(rated(playing("tim", "X", "Movie"), "Adult"), playing("tim", "A", "Movie"))
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"send m1"}) {
		t.Fatalf("calls = %v, want [send m1]", calls)
	}
	if e := h.rec.Store().Get("tim"); e.ItemID != "A" {
		t.Errorf("item = %q, want A", e.ItemID)
	}
}

func TestEpisodeTitleReachesEmbed(t *testing.T) {
	h := newHarness(t, nil)
	s, e := 1, 3
	h.play(emby.Session{UserName: "tim", NowPlayingItem: &emby.Item{
		ID: "E", Type: "Episode", SeriesName: "Foo", Name: "Bar",
		ParentIndexNumber: &s, IndexNumber: &e,
	}})
	h.tick(t)
	if got := h.tr.sent[0].Embeds[0].Title; got != "Foo - S01E03: Bar" {
		t.Errorf("title = %q", got)
	}
}

// ///////////////////////////////////////////////
// Failures
// ///////////////////////////////////////////////

func TestSourceUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.src.err = errors.New("connection refused")
	h.play()
	err := h.rec.Tick(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if calls := h.tr.take(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	if e := h.rec.Store().Get("tim"); e.ItemID != "A" {
		t.Errorf("state changed on failed tick: %+v", e)
	}
	if h.metrics.failures != 1 {
		t.Errorf("failures = %d, want 1", h.metrics.failures)
	}
}

func TestStaleDeleteRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.tr.failDel["m1"] = errors.New("gateway timeout")
	h.play(playing("tim", "B", "Movie"))
	h.clock.advance(time.Second)
	h.tick(t)
	e := h.rec.Store().Get("tim")
	if e.ItemID != "B" || len(e.Stale) != 1 || e.Stale[0].MessageID != "m1" {
		t.Fatalf("entry = %+v, want B with stale m1", e)
	}

	delete(h.tr.failDel, "m1")
	h.clock.advance(time.Second)
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"delete m1"}) {
		t.Errorf("retry calls = %v, want [delete m1]", calls)
	}
	if e := h.rec.Store().Get("tim"); len(e.Stale) != 0 {
		t.Errorf("stale = %v, want none", e.Stale)
	}
}

func TestNotFoundDeleteIsSatisfied(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.tr.failDel["m1"] = &discord.APIError{Status: 404}
	h.play()
	h.tick(t)
	if e := h.rec.Store().Get("tim"); len(e.Stale) != 0 || e.Live != nil {
		t.Errorf("entry = %+v, want clean idle", e)
	}
}

func TestSendFailureRetriedNextTick(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.failSnd = errors.New("discord down")
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)
	if e := h.rec.Store().Get("tim"); e.State() != Idle {
		t.Fatalf("state = %v, want idle after failed send", e.State())
	}

	h.tr.failSnd = nil
	if calls := h.tick(t); !reflect.DeepEqual(calls, []string{"send m1"}) {
		t.Errorf("calls = %v, want [send m1]", calls)
	}
	if e := h.rec.Store().Get("tim"); e.ItemID != "A" {
		t.Errorf("entry = %+v", e)
	}
}

// ///////////////////////////////////////////////
// Watch List
// ///////////////////////////////////////////////

func TestUnwatchedUsersIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("stranger", "Z", "Movie"))
	calls := h.tick(t)
	if !reflect.DeepEqual(calls, []string{"send m1"}) {
		t.Fatalf("calls = %v, want only idle placeholder", calls)
	}
	if users := h.rec.Store().Users(); len(users) != 0 {
		t.Errorf("users = %v, want none", users)
	}
}

func TestFirstRenderableSessionWins(t *testing.T) {
	h := newHarness(t, nil)
	h.play(
		idleSession("tim"),
		rated(playing("tim", "X", "Movie"), "Adult"),
		playing("TIM", "A", "Movie"),
		playing("tim", "B", "Movie"),
	)
	h.tick(t)
	if e := h.rec.Store().Get("tim"); e.ItemID != "A" {
		t.Errorf("ItemID = %q, want A", e.ItemID)
	}
}

func TestSetWatchRemovesUser(t *testing.T) {
	h := newHarness(t, nil)
	h.play(playing("tim", "A", "Movie"))
	h.tick(t)

	h.rec.SetWatch(watchOnly("jeffery"))
	calls := h.tick(t)
	if !reflect.DeepEqual(calls, []string{"delete m1", "send m2"}) {
		t.Fatalf("calls = %v", calls)
	}
	if users := h.rec.Store().Users(); len(users) != 0 {
		t.Errorf("users = %v, want tim forgotten", users)
	}
}

// ///////////////////////////////////////////////
// Concurrency / Shutdown
// ///////////////////////////////////////////////

func TestParallelUsers(t *testing.T) {
	var names []string
	for i := 0; i < 20; i++ {
		names = append(names, fmt.Sprintf("user%02d", i))
	}
	h := newHarness(t, func(o *Options) {
		o.Watch = watchOnly(names...)
		o.MaxParallel = 3
	})

	var sessions []emby.Session
	for _, n := range names {
		sessions = append(sessions, playing(n, "item-"+n, "Movie"))
	}
	h.play(sessions...)
	calls := h.tick(t)
	if len(calls) != len(names) {
		t.Fatalf("calls = %d, want %d", len(calls), len(names))
	}

	seen := map[string]bool{}
	for _, n := range names {
		e := h.rec.Store().Get(n)
		if e.Live == nil || seen[e.Live.MessageID] {
			t.Fatalf("user %s has missing or shared handle %v", n, e.Live)
		}
		seen[e.Live.MessageID] = true
	}
	if h.metrics.active != len(names) {
		t.Errorf("active = %d", h.metrics.active)
	}
	if h.metrics.renders != len(names) {
		t.Errorf("renders = %d, want %d", h.metrics.renders, len(names))
	}
}

func TestShutdown(t *testing.T) {
	tests := []struct {
		name      string
		clear     bool
		wantCalls int
	}{
		{"keeps messages", false, 0},
		{"clears messages", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.ClearOnExit = tt.clear })
			h.play(playing("tim", "A", "Movie"))
			h.tick(t)

			h.rec.Shutdown(context.Background())
			calls := h.tr.take()
			if len(calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", calls, tt.wantCalls)
			}
			if tt.clear && h.rec.Store().ActiveCount() != 0 {
				t.Error("entries still active after clearing shutdown")
			}
		})
	}
}

func TestShutdownClearsIdle(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ClearOnExit = true })
	h.tick(t)
	h.rec.Shutdown(context.Background())
	if calls := h.tr.take(); !reflect.DeepEqual(calls, []string{"delete m1"}) {
		t.Errorf("calls = %v, want [delete m1]", calls)
	}
	if h.rec.Store().Idle() != nil {
		t.Error("idle handle still recorded")
	}
}
