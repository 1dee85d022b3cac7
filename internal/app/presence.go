package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// ProfileResolver is the slice of Registry that presence needs for
// snapshots.
type ProfileResolver interface {
	Resolve(core.ConnID) (domain.Identity, error)
}

type memberRef struct {
	Room domain.Room
	User domain.UserID
}

// JoinResult reports what a join changed. FirstJoinForUser means this is
// the user's first live connection in the room, so a user-joined event is
// due. Displaced is set when the connection had to be implicitly removed
// from a previous room first.
type JoinResult struct {
	FirstJoinForUser bool
	Displaced        *LeaveResult
}

// LeaveResult reports what a leave changed. LastForUser means the user has
// no remaining connections in the room, so a user-left event is due.
type LeaveResult struct {
	Room        domain.Room
	User        domain.UserID
	LastForUser bool
}

// Presence tracks room membership keyed by (room, userId) with a set of
// connection ids per user. One mutex serializes all membership mutations;
// these are fast in-memory operations and never block on I/O.
type Presence struct {
	mu       sync.Mutex
	rooms    map[string]map[domain.UserID]map[core.ConnID]struct{}
	byConn   map[core.ConnID]memberRef
	resolver ProfileResolver
}

func NewPresence(resolver ProfileResolver) *Presence {
	return &Presence{
		rooms:    make(map[string]map[domain.UserID]map[core.ConnID]struct{}),
		byConn:   make(map[core.ConnID]memberRef),
		resolver: resolver,
	}
}

// Join adds the connection to room under user. A connection belongs to at
// most one room; joining while a member elsewhere removes it there first
// and reports that removal in Displaced.
func (p *Presence) Join(cid core.ConnID, user domain.UserID, room domain.Room) JoinResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res JoinResult
	if prev, ok := p.byConn[cid]; ok {
		if prev.Room == room && prev.User == user {
			return res
		}
		left := p.removeLocked(cid)
		res.Displaced = &left
	}

	key := room.Key()
	users, ok := p.rooms[key]
	if !ok {
		users = make(map[domain.UserID]map[core.ConnID]struct{})
		p.rooms[key] = users
	}
	conns, ok := users[user]
	if !ok {
		conns = make(map[core.ConnID]struct{})
		users[user] = conns
		res.FirstJoinForUser = true
	}
	conns[cid] = struct{}{}
	p.byConn[cid] = memberRef{Room: room, User: user}

	log.Info().Str("module", "app.presence").Str("cid", string(cid)).
		Str("user", string(user)).Str("room", key).
		Bool("first", res.FirstJoinForUser).Msg("joined")
	return res
}

// Leave removes the connection from its room. Idempotent: returns false
// when the connection was not a member of any room.
func (p *Presence) Leave(cid core.ConnID, reason string) (LeaveResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byConn[cid]; !ok {
		return LeaveResult{}, false
	}
	res := p.removeLocked(cid)
	log.Info().Str("module", "app.presence").Str("cid", string(cid)).
		Str("room", res.Room.Key()).Str("reason", reason).
		Bool("last", res.LastForUser).Msg("left")
	return res, true
}

func (p *Presence) removeLocked(cid core.ConnID) LeaveResult {
	ref := p.byConn[cid]
	delete(p.byConn, cid)

	res := LeaveResult{Room: ref.Room, User: ref.User}
	key := ref.Room.Key()
	users, ok := p.rooms[key]
	if !ok {
		return res
	}
	if conns, ok := users[ref.User]; ok {
		delete(conns, cid)
		if len(conns) == 0 {
			delete(users, ref.User)
			res.LastForUser = true
		}
	}
	if len(users) == 0 {
		delete(p.rooms, key)
	}
	return res
}

func (p *Presence) RoomOf(cid core.ConnID) (domain.Room, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.byConn[cid]
	return ref.Room, ok
}

// SameRoom reports whether both connections are currently members of the
// same room. Used to gate signaling relay.
func (p *Presence) SameRoom(a, b core.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ra, ok := p.byConn[a]
	if !ok {
		return false
	}
	rb, ok := p.byConn[b]
	return ok && ra.Room == rb.Room
}

// Connections lists every live connection joined to room.
func (p *Presence) Connections(room domain.Room) []core.ConnID {
	p.mu.Lock()
	defer p.mu.Unlock()
	users, ok := p.rooms[room.Key()]
	if !ok {
		return nil
	}
	var out []core.ConnID
	for _, conns := range users {
		out = append(out, lo.Keys(conns)...)
	}
	return out
}

// Snapshot returns one profile per distinct member user, resolved fresh
// through the session registry and sorted by display name. Users whose
// token no longer resolves are omitted rather than failing the snapshot.
func (p *Presence) Snapshot(room domain.Room) []domain.Identity {
	p.mu.Lock()
	perUser := make(map[domain.UserID][]core.ConnID)
	if users, ok := p.rooms[room.Key()]; ok {
		for user, conns := range users {
			perUser[user] = lo.Keys(conns)
		}
	}
	p.mu.Unlock()

	out := make([]domain.Identity, 0, len(perUser))
	for _, conns := range perUser {
		for _, cid := range conns {
			id, err := p.resolver.Resolve(cid)
			if err == nil {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}
