package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"peerchat/internal/app/orch"
	"peerchat/internal/config"
	"peerchat/internal/core"
	"peerchat/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Orch     *orch.Orchestrator
	Cfg      *config.Config
	validate *validator.Validate
	limiter  *ConnRateLimiter
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{
		Orch:     o,
		Cfg:      cfg,
		validate: validator.New(),
		limiter:  NewConnRateLimiter(cfg.RateLimit, cfg.RateLimitInterval),
	}
}

// client is the per-connection state owned by the readPump goroutine.
type client struct {
	cid        core.ConnID
	conn       *wsConn
	cancel     context.CancelFunc
	registered bool
}

// HandleChat upgrades the request and runs the connection until it dies.
// Each connection gets a fresh ConnID; identity arrives with the first
// register event.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	cid := core.ConnID(uuid.NewString())
	conn := newWSConn(ws, ctl.Cfg.SendBuffer)
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	ctx, cancel := context.WithCancel(ctx)
	cl := &client{cid: cid, conn: conn, cancel: cancel}
	log.Info().Str("module", "ws").Str("cid", string(cid)).Msg("new connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cl)
}

func (ctl *Controller) dispatch(ctx context.Context, cl *client, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.ack(cl.conn, protocol.Ack{OK: false, Error: core.Kind(core.ErrInvalidPayload)})
		return
	}

	if !cl.registered && env.Type != protocol.EvtRegister {
		// Unauthenticated connections may not linger.
		ctl.ack(cl.conn, protocol.Ack{Seq: env.Seq, OK: false, Error: core.Kind(core.ErrAuthRequired)})
		ctl.terminate(cl)
		return
	}

	switch env.Type {
	case protocol.EvtRegister:
		ctl.handleRegister(cl, env.Seq, data)
	case protocol.EvtJoinChannel:
		ctl.handleJoin(ctx, cl, env.Seq, data)
	case protocol.EvtLeaveChannel:
		ctl.handleLeave(cl, env.Seq)
	case protocol.EvtServerMsg:
		ctl.handleServerMessage(ctx, cl, env.Seq, data)
	case protocol.EvtStoreMsg:
		ctl.handleStoreMessage(ctx, cl, env.Seq, data)
	case protocol.EvtP2PReady:
		ctl.handleP2PReady(cl, env.Seq)
	case protocol.EvtP2PSignal:
		ctl.handleP2PSignal(cl, data)
	case protocol.EvtP2PConnected:
		ctl.handleP2PConnected(cl, data)
	case protocol.EvtP2PTeardown:
		ctl.handleP2PTeardown(cl, env.Seq)
	case protocol.EvtTypingStart:
		ctl.handleTyping(cl, env.Seq, true)
	case protocol.EvtTypingStop:
		ctl.handleTyping(cl, env.Seq, false)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown event")
		ctl.ack(cl.conn, protocol.Ack{Seq: env.Seq, OK: false, Error: core.Kind(core.ErrInvalidPayload)})
	}
}

// decode unmarshals and validates one payload. A failure acks
// invalid-payload with no state change.
func (ctl *Controller) decode(cl *client, seq int64, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: false, Error: core.Kind(core.ErrInvalidPayload)})
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: false, Error: core.Kind(core.ErrInvalidPayload)})
		return false
	}
	return true
}

func (ctl *Controller) ack(conn *wsConn, a protocol.Ack) {
	a.Type = protocol.EvtAck
	ctl.sendJSON(conn, a)
}

func (ctl *Controller) sendJSON(conn *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("marshal frame")
		return
	}
	_ = conn.TrySend(b)
}

// fail acks an operation error and terminates the connection when the
// error is fatal (identity failures only).
func (ctl *Controller) fail(cl *client, seq int64, err error) {
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: false, Error: core.Kind(err)})
	if core.Fatal(err) {
		ctl.terminate(cl)
	}
}

func (ctl *Controller) terminate(cl *client) {
	cl.cancel()
	cl.conn.Close()
}

func (ctl *Controller) handleRegister(cl *client, seq int64, data []byte) {
	var p protocol.RegisterPayload
	if !ctl.decode(cl, seq, data, &p) {
		return
	}
	ctl.Orch.Registry.Bind(cl.cid, p.Token, cl.conn, cl.cancel)
	identity, err := ctl.Orch.Registry.Resolve(cl.cid)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("cid", string(cl.cid)).Msg("register rejected")
		ctl.fail(cl, seq, core.ErrAuthRequired)
		return
	}
	cl.registered = true
	log.Info().Str("module", "ws").Str("cid", string(cl.cid)).
		Str("user", string(identity.ID)).Msg("registered")
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true, User: &identity})
}

func (ctl *Controller) handleJoin(ctx context.Context, cl *client, seq int64, data []byte) {
	var p protocol.RoomPayload
	if !ctl.decode(cl, seq, data, &p) {
		return
	}
	res, err := ctl.Orch.Join(ctx, cl.cid, p.Room())
	if err != nil {
		ctl.fail(cl, seq, err)
		return
	}
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true})
	ctl.sendJSON(cl.conn, protocol.HistoryEvent{
		Type:     protocol.EvtHistory,
		Room:     res.Room,
		Messages: res.History,
	})
}

func (ctl *Controller) handleLeave(cl *client, seq int64) {
	ctl.Orch.Leave(cl.cid, "leave-channel")
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true})
}

func (ctl *Controller) handleServerMessage(ctx context.Context, cl *client, seq int64, data []byte) {
	var p protocol.MessagePayload
	if !ctl.decode(cl, seq, data, &p) {
		return
	}
	msg, err := ctl.Orch.SendMessage(ctx, cl.cid, p.Room(), p.Draft())
	if err != nil {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: false, Error: core.Kind(err), TempID: p.TempID})
		if core.Fatal(err) {
			ctl.terminate(cl)
		}
		return
	}
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true, TempID: p.TempID, Message: &msg})
}

func (ctl *Controller) handleStoreMessage(ctx context.Context, cl *client, seq int64, data []byte) {
	var p protocol.MessagePayload
	if !ctl.decode(cl, seq, data, &p) {
		return
	}
	msg, err := ctl.Orch.StoreMessage(ctx, cl.cid, p.Room(), p.Draft())
	if err != nil {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: false, Error: core.Kind(err), TempID: p.TempID})
		if core.Fatal(err) {
			ctl.terminate(cl)
		}
		return
	}
	ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true, TempID: p.TempID, Message: &msg})
}

func (ctl *Controller) handleTyping(cl *client, seq int64, start bool) {
	var err error
	if start {
		err = ctl.Orch.TypingStart(cl.cid)
	} else {
		err = ctl.Orch.TypingStop(cl.cid)
	}
	if err != nil {
		ctl.fail(cl, seq, err)
		return
	}
	if seq != 0 {
		ctl.ack(cl.conn, protocol.Ack{Seq: seq, OK: true})
	}
}
