package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"peerchat/internal/domain"
)

// Typing tracks ephemeral per-room typing state with inactivity expiry.
// State is keyed by userId, so a user typing from any device marks the
// user typing; the most recent start from any connection owns the
// deadline (last writer wins).
type Typing struct {
	mu    sync.Mutex
	ttl   time.Duration
	rooms map[string]*typingRoom

	// onChange fires only when a room's set of typing users actually
	// changed, never on refresh-only updates.
	onChange func(domain.Room, []domain.UserID)
}

type typingRoom struct {
	room      domain.Room
	deadlines map[domain.UserID]time.Time
}

func NewTyping(ttl time.Duration, onChange func(domain.Room, []domain.UserID)) *Typing {
	return &Typing{
		ttl:      ttl,
		rooms:    make(map[string]*typingRoom),
		onChange: onChange,
	}
}

// Start inserts or refreshes the user's expiry timer. Returns true when
// the typing set changed (the user was not already typing).
func (t *Typing) Start(room domain.Room, user domain.UserID) bool {
	t.mu.Lock()
	tr, ok := t.rooms[room.Key()]
	if !ok {
		tr = &typingRoom{room: room, deadlines: make(map[domain.UserID]time.Time)}
		t.rooms[room.Key()] = tr
	}
	_, already := tr.deadlines[user]
	tr.deadlines[user] = time.Now().Add(t.ttl)
	var typers []domain.UserID
	if !already {
		typers = tr.typersLocked()
	}
	t.mu.Unlock()

	if !already && t.onChange != nil {
		t.onChange(room, typers)
	}
	return !already
}

// Stop removes the user immediately. Returns true when the set changed.
func (t *Typing) Stop(room domain.Room, user domain.UserID) bool {
	t.mu.Lock()
	tr, ok := t.rooms[room.Key()]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if _, typing := tr.deadlines[user]; !typing {
		t.mu.Unlock()
		return false
	}
	delete(tr.deadlines, user)
	typers := tr.typersLocked()
	if len(tr.deadlines) == 0 {
		delete(t.rooms, room.Key())
	}
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(room, typers)
	}
	return true
}

func (t *Typing) Typers(room domain.Room) []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.rooms[room.Key()]
	if !ok {
		return nil
	}
	return tr.typersLocked()
}

func (tr *typingRoom) typersLocked() []domain.UserID {
	out := lo.Keys(tr.deadlines)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run sweeps lapsed entries until ctx is done. Each expiry that shrinks a
// room's typing set fires onChange exactly once.
func (t *Typing) Run(ctx context.Context, sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.expire(now)
		}
	}
}

func (t *Typing) expire(now time.Time) {
	type change struct {
		room   domain.Room
		typers []domain.UserID
	}
	var changes []change

	t.mu.Lock()
	for key, tr := range t.rooms {
		expired := false
		for user, deadline := range tr.deadlines {
			if deadline.Before(now) {
				delete(tr.deadlines, user)
				expired = true
			}
		}
		if expired {
			changes = append(changes, change{room: tr.room, typers: tr.typersLocked()})
			if len(tr.deadlines) == 0 {
				delete(t.rooms, key)
			}
		}
	}
	t.mu.Unlock()

	for _, c := range changes {
		log.Debug().Str("module", "app.typing").Str("room", c.room.Key()).
			Int("typers", len(c.typers)).Msg("expired typing state")
		if t.onChange != nil {
			t.onChange(c.room, c.typers)
		}
	}
}
