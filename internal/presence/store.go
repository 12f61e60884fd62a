package presence

import (
	"slices"
	"time"

	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/lifecycle"
	"tools.zach/dev/embycord/internal/media"
)

// State is the per-user presence state.
type State uint8

const (
	// Idle means nothing is displayed for the user.
	Idle State = iota
	// Active means a live message shows the user's current item.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Entry is everything known about one watched user.
//
// Live is non-nil exactly when ItemID is set, and Aux is only set alongside
// Live. Stale handles are messages whose delete failed; they are retried
// and are never treated as live.
type Entry struct {
	User      string
	ItemID    string
	Kind      media.Kind
	UpdatedAt time.Time
	Live      *discord.Handle
	Aux       *discord.Handle
	Editable  bool
	Stale     []discord.Handle
}

// State reports whether the entry is displaying an item.
func (e Entry) State() State {
	if e.ItemID == "" {
		return Idle
	}
	return Active
}

// Handles returns the owned message handles.
func (e Entry) Handles() lifecycle.Handles {
	return lifecycle.Handles{Live: e.Live, Aux: e.Aux}
}

// clearItem drops the displayed item and its handles, keeping stale ones.
func (e Entry) clearItem() Entry {
	return Entry{User: e.User, Stale: e.Stale}
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store holds presence entries and the shared idle placeholder. It is not
// safe for concurrent use; the reconciler is its only writer.
type Store struct {
	entries   map[string]Entry
	idle      *discord.Handle
	idleStale []discord.Handle
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Get returns the entry for user, creating an idle one on first access.
func (s *Store) Get(user string) Entry {
	e, ok := s.entries[user]
	if !ok {
		e = Entry{User: user}
		s.entries[user] = e
	}
	return e
}

// Set replaces the entry for user.
func (s *Store) Set(user string, e Entry) {
	e.User = user
	s.entries[user] = e
}

// Delete forgets user.
func (s *Store) Delete(user string) {
	delete(s.entries, user)
}

// Users returns the known users in sorted order.
func (s *Store) Users() []string {
	users := make([]string, 0, len(s.entries))
	for u := range s.entries {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

// ActiveCount returns the number of users currently displayed.
func (s *Store) ActiveCount() int {
	n := 0
	for _, e := range s.entries {
		if e.State() == Active {
			n++
		}
	}
	return n
}

// Idle returns the idle placeholder handle, or nil.
func (s *Store) Idle() *discord.Handle { return s.idle }

// SetIdle records the idle placeholder handle.
func (s *Store) SetIdle(h *discord.Handle) { s.idle = h }

// IdleStale returns placeholder handles awaiting deletion.
func (s *Store) IdleStale() []discord.Handle { return s.idleStale }

// SetIdleStale replaces the pending placeholder deletions.
func (s *Store) SetIdleStale(hs []discord.Handle) { s.idleStale = hs }
