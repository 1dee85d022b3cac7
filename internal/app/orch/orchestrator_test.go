package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"peerchat/internal/app"
	"peerchat/internal/core"
	"peerchat/internal/domain"
	"peerchat/internal/identity"
	"peerchat/internal/protocol"
	"peerchat/internal/storage"
)

var (
	roomGeneral = domain.Room{ServerID: "s1", ChannelID: "general"}
	roomOther   = domain.Room{ServerID: "s1", ChannelID: "other"}
)

// fakeConn records every frame the orchestrator pushes at a connection.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), fr...))
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// eventsOf decodes the frames of one wire type received so far.
func (f *fakeConn) eventsOf(t *testing.T, typ string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	o        *Orchestrator
	provider *identity.MemoryProvider
	conns    map[core.ConnID]*fakeConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := storage.NewDirectory(db)
	ctx := context.Background()
	require.NoError(t, dir.Create(ctx, storage.ChannelInfo{ServerID: "s1", ChannelID: "general", Name: "general"}))
	require.NoError(t, dir.Create(ctx, storage.ChannelInfo{ServerID: "s1", ChannelID: "other", Name: "other"}))

	provider := identity.NewMemoryProvider()
	registry := app.NewRegistry(provider)
	presence := app.NewPresence(registry)
	cast := app.NewBroadcaster(presence, registry)
	typing := app.NewTyping(time.Minute, func(room domain.Room, typers []domain.UserID) {
		cast.Emit(room, protocol.TypingUpdate{Type: protocol.EvtTypingUpdate, Room: room, Typers: typers})
	})

	return &fixture{
		o: &Orchestrator{
			Registry:     registry,
			Presence:     presence,
			Typing:       typing,
			Signals:      app.NewSignaling(),
			Cast:         cast,
			Ledger:       storage.NewLedger(db, dir, 50),
			Channels:     dir,
			HistoryLimit: 50,
		},
		provider: provider,
		conns:    make(map[core.ConnID]*fakeConn),
	}
}

// connect registers a live identified connection.
func (fx *fixture) connect(cid core.ConnID, user domain.UserID, name string) *fakeConn {
	token := "tok-" + string(cid)
	fx.provider.Put(token, domain.Identity{ID: user, DisplayName: name})
	conn := &fakeConn{}
	fx.conns[cid] = conn
	fx.o.Registry.Bind(cid, token, conn, func() {})
	return conn
}

func TestJoin_SecondDeviceDoesNotReannounce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	observer := fx.connect("obs", "watcher", "watcher")
	_, err := fx.o.Join(ctx, "obs", roomGeneral)
	require.NoError(t, err)

	fx.connect("c1", "u1", "alice")
	fx.connect("c2", "u1", "alice")
	_, err = fx.o.Join(ctx, "c1", roomGeneral)
	require.NoError(t, err)
	_, err = fx.o.Join(ctx, "c2", roomGeneral)
	require.NoError(t, err)

	var joins int
	for _, ev := range observer.eventsOf(t, protocol.EvtChannelEvent) {
		if ev["kind"] == protocol.ChannelUserJoined && ev["user"].(map[string]any)["id"] == "u1" {
			joins++
		}
	}
	require.Equal(t, 1, joins, "one user-joined for two devices")

	ack, err := fx.o.Join(ctx, "c2", roomGeneral)
	require.NoError(t, err)
	require.Len(t, ack.Members, 2)
}

func TestLeave_UserLeftOnlyOnLastConnection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	observer := fx.connect("obs", "watcher", "watcher")
	_, err := fx.o.Join(ctx, "obs", roomGeneral)
	require.NoError(t, err)

	fx.connect("c1", "u1", "alice")
	fx.connect("c2", "u1", "alice")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)

	countLefts := func() int {
		var n int
		for _, ev := range observer.eventsOf(t, protocol.EvtChannelEvent) {
			if ev["kind"] == protocol.ChannelUserLeft && ev["user"].(map[string]any)["id"] == "u1" {
				n++
			}
		}
		return n
	}

	fx.o.Leave("c1", "test")
	require.Equal(t, 0, countLefts(), "user still present on another device")

	fx.o.Leave("c2", "test")
	require.Equal(t, 1, countLefts())
}

func TestJoin_DisplacementEmitsLeftInOldRoom(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	observer := fx.connect("obs", "watcher", "watcher")
	_, _ = fx.o.Join(ctx, "obs", roomGeneral)

	fx.connect("c1", "u1", "alice")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, err := fx.o.Join(ctx, "c1", roomOther)
	require.NoError(t, err)

	var lefts int
	for _, ev := range observer.eventsOf(t, protocol.EvtChannelEvent) {
		if ev["kind"] == protocol.ChannelUserLeft && ev["user"].(map[string]any)["id"] == "u1" {
			lefts++
		}
	}
	require.Equal(t, 1, lefts)
	require.Empty(t, fx.o.Presence.Connections(roomGeneral))
}

func TestSendMessage_PersistsAndFansOut(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	receiver := fx.connect("c2", "u2", "bob")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)

	msg, err := fx.o.SendMessage(ctx, "c1", roomGeneral, domain.Draft{TempID: "tmp-1", Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, "tmp-1", msg.ID)
	require.Equal(t, domain.TransportServer, msg.Transport)

	events := receiver.eventsOf(t, protocol.EvtMessage)
	require.Len(t, events, 1)
	require.Equal(t, "tmp-1", events[0]["message"].(map[string]any)["id"])

	history, err := fx.o.Ledger.Read(ctx, roomGeneral, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestSendMessage_RequiresMembership(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	_, err := fx.o.SendMessage(ctx, "c1", roomGeneral, domain.Draft{Text: "hi"})
	require.ErrorIs(t, err, core.ErrRoomNotFound)

	_, _ = fx.o.Join(ctx, "c1", roomOther)
	_, err = fx.o.SendMessage(ctx, "c1", roomGeneral, domain.Draft{Text: "hi"})
	require.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestStoreMessage_NoFanOut(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	receiver := fx.connect("c2", "u2", "bob")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)

	msg, err := fx.o.StoreMessage(ctx, "c1", roomGeneral, domain.Draft{TempID: "tmp-1", Text: "over p2p"})
	require.NoError(t, err)
	require.Equal(t, domain.TransportP2P, msg.Transport)

	require.Empty(t, receiver.eventsOf(t, protocol.EvtMessage), "p2p stores are catch-up only")

	history, err := fx.o.Ledger.Read(ctx, roomGeneral, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestP2PReady_AssignsAsymmetricRoles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	announcer := fx.connect("c1", "u1", "alice")
	peer := fx.connect("c2", "u2", "bob")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)

	require.NoError(t, fx.o.P2PReady("c1"))

	got := announcer.eventsOf(t, protocol.EvtP2PReady)
	require.Len(t, got, 1)
	require.Equal(t, "c2", got[0]["peer"])
	require.Equal(t, true, got[0]["initiator"])

	got = peer.eventsOf(t, protocol.EvtP2PReady)
	require.Len(t, got, 1)
	require.Equal(t, "c1", got[0]["peer"])
	require.Equal(t, false, got[0]["initiator"])
}

func TestP2PSignal_RelayedVerbatim(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	peer := fx.connect("c2", "u2", "bob")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)
	require.NoError(t, fx.o.P2PReady("c1"))

	offer, err := json.Marshal(protocol.SDPSignal{
		Kind: protocol.SignalSDP,
		Description: webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n",
		},
	})
	require.NoError(t, err)

	fx.o.P2PSignal("c1", "c2", offer)

	got := peer.eventsOf(t, protocol.EvtP2PSignal)
	require.Len(t, got, 1)
	require.Equal(t, "c1", got[0]["from"])
	data, err := json.Marshal(got[0]["data"])
	require.NoError(t, err)
	require.JSONEq(t, string(offer), string(data))
}

func TestP2PSignal_CrossRoomIsDropped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	outsider := fx.connect("c3", "u3", "carol")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c3", roomOther)

	fx.o.P2PSignal("c1", "c3", json.RawMessage(`{"kind":"sdp"}`))
	require.Empty(t, outsider.eventsOf(t, protocol.EvtP2PSignal))
}

func TestDisconnect_CascadesEverything(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.connect("c1", "u1", "alice")
	peer := fx.connect("c2", "u2", "bob")
	_, _ = fx.o.Join(ctx, "c1", roomGeneral)
	_, _ = fx.o.Join(ctx, "c2", roomGeneral)

	require.NoError(t, fx.o.P2PReady("c1"))
	require.NoError(t, fx.o.TypingStart("c1"))

	fx.o.Disconnect("c1")

	// Membership gone.
	snap := fx.o.Presence.Snapshot(roomGeneral)
	require.Len(t, snap, 1)
	require.Equal(t, domain.UserID("u2"), snap[0].ID)

	// Peer told to discard its negotiation state.
	teardowns := peer.eventsOf(t, protocol.EvtP2PTeardown)
	require.Len(t, teardowns, 1)
	require.Equal(t, "c1", teardowns[0]["peer"])

	// Typing cleared with a final empty update.
	updates := peer.eventsOf(t, protocol.EvtTypingUpdate)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.Empty(t, last["typers"])

	// Registry entry gone.
	_, err := fx.o.Registry.Resolve("c1")
	require.ErrorIs(t, err, core.ErrAuthRequired)

	// Second disconnect is harmless.
	fx.o.Disconnect("c1")
}

func TestTyping_RequiresRoom(t *testing.T) {
	fx := newFixture(t)
	fx.connect("c1", "u1", "alice")

	require.ErrorIs(t, fx.o.TypingStart("c1"), core.ErrRoomNotFound)
}

func TestJoin_UnknownChannel(t *testing.T) {
	fx := newFixture(t)
	fx.connect("c1", "u1", "alice")

	_, err := fx.o.Join(context.Background(), "c1", domain.Room{ServerID: "s1", ChannelID: "missing"})
	require.ErrorIs(t, err, core.ErrChannelNotFound)
}

func TestJoin_Unregistered(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.o.Join(context.Background(), "ghost", roomGeneral)
	require.ErrorIs(t, err, core.ErrAuthRequired)
}
