package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// PairState is the lifecycle of one peer negotiation. Closed pairs are
// removed from the table rather than kept around.
type PairState int

const (
	PairAnnounced PairState = iota
	PairSignaling
	PairConnected
)

// pairKey is ordered: the initiator side is always first. The orientation
// is fixed at announce time and never flips, which is what keeps offer
// roles consistent on both ends.
type pairKey struct {
	Initiator core.ConnID
	Responder core.ConnID
}

type pairSession struct {
	state PairState
	room  domain.Room
}

// Introduction tells one connection about a peer it should negotiate
// with, and which side dials.
type Introduction struct {
	Peer      core.ConnID
	Initiator bool
}

// Signaling introduces pairs of peers within a room and tracks their
// negotiation sessions. It never inspects payloads; relay gating happens
// in the orchestrator against presence.
type Signaling struct {
	mu       sync.Mutex
	sessions map[pairKey]*pairSession
}

func NewSignaling() *Signaling {
	return &Signaling{sessions: make(map[pairKey]*pairSession)}
}

// Announce declares cid ready for P2P in room and pairs it with every
// peer currently present. The announcer is designated initiator toward
// each pre-existing peer; a pair that already has a live session in
// either orientation is left alone, so no ordered pair ever carries two
// initiator designations.
func (s *Signaling) Announce(cid core.ConnID, room domain.Room, peers []core.ConnID) []Introduction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var intros []Introduction
	for _, peer := range peers {
		if peer == cid {
			continue
		}
		if _, ok := s.sessions[pairKey{Initiator: cid, Responder: peer}]; ok {
			continue
		}
		if _, ok := s.sessions[pairKey{Initiator: peer, Responder: cid}]; ok {
			continue
		}
		s.sessions[pairKey{Initiator: cid, Responder: peer}] = &pairSession{state: PairAnnounced, room: room}
		intros = append(intros, Introduction{Peer: peer, Initiator: true})
	}
	log.Info().Str("module", "app.signaling").Str("cid", string(cid)).
		Str("room", room.Key()).Int("pairs", len(intros)).Msg("announced")
	return intros
}

// Signal records one relayed payload between from and to. Returns false
// when no live session exists for the pair; the caller then drops the
// payload silently (the peer may simply have left already).
func (s *Signaling) Signal(from, to core.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.lookupLocked(from, to)
	if !ok {
		return false
	}
	if sess.state == PairAnnounced {
		sess.state = PairSignaling
	}
	return true
}

// Connected marks the pair's data channel as established.
func (s *Signaling) Connected(a, b core.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.lookupLocked(a, b)
	if !ok {
		return false
	}
	sess.state = PairConnected
	return true
}

func (s *Signaling) lookupLocked(a, b core.ConnID) (*pairSession, bool) {
	if sess, ok := s.sessions[pairKey{Initiator: a, Responder: b}]; ok {
		return sess, true
	}
	sess, ok := s.sessions[pairKey{Initiator: b, Responder: a}]
	return sess, ok
}

// State reports the current pair state, if a session exists.
func (s *Signaling) State(a, b core.ConnID) (PairState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.lookupLocked(a, b)
	if !ok {
		return 0, false
	}
	return sess.state, true
}

// Teardown closes every session involving cid and returns the peers that
// must be told to discard their local negotiation state. Idempotent: a
// second call finds nothing and returns nil.
func (s *Signaling) Teardown(cid core.ConnID) []core.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[core.ConnID]struct{})
	var peers []core.ConnID
	for key := range s.sessions {
		var other core.ConnID
		switch cid {
		case key.Initiator:
			other = key.Responder
		case key.Responder:
			other = key.Initiator
		default:
			continue
		}
		delete(s.sessions, key)
		if _, dup := seen[other]; !dup {
			seen[other] = struct{}{}
			peers = append(peers, other)
		}
	}
	if len(peers) > 0 {
		log.Info().Str("module", "app.signaling").Str("cid", string(cid)).
			Int("peers", len(peers)).Msg("tore down sessions")
	}
	return peers
}
