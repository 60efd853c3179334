package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"factorygrid.ai/internal/observerproto"
	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

// Engine is the part of the factory engine the observer surface uses.
type Engine interface {
	Apply(ed factory.Edit) (uint64, error)
	Cells() []factory.CellSnapshot
	CurrentTick() uint64
	Config() factory.Config
	Catalog() *catalogs.Catalog
}

// Recorder receives observer counters (see internal/metrics).
type Recorder interface {
	ObserveEdit(action, code string)
	SetObservers(n int)
}

type Options struct {
	CommandRate     float64
	CommandBurst    int
	MaxSessions     int
	PushEveryFrames int
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool

	Metrics Recorder
	Audit   func(factory.AuditEntry)
}

func (o *Options) applyDefaults() {
	if o.CommandRate <= 0 {
		o.CommandRate = 10
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = 20
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 64
	}
	if o.PushEveryFrames <= 0 {
		o.PushEveryFrames = 1
	}
}

type session struct {
	id    string
	actor string

	stateOut  chan []byte
	resultOut chan []byte
	limiter   *rate.Limiter
}

type Server struct {
	engine Engine
	log    *log.Logger
	opts   Options

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session

	frames atomic.Uint64
}

func NewServer(e Engine, logger *log.Logger, opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		engine: e,
		log:    logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: map[string]*session{},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// Sessions returns the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) welcome(sessionID string) observerproto.WelcomeMsg {
	cfg := s.engine.Config()
	cat := s.engine.Catalog()
	entries := make([]observerproto.CatalogEntry, 0)
	for _, d := range cat.Defs() {
		r, _ := cat.Recipe(d.Kind)
		entries = append(entries, observerproto.CatalogEntry{
			Kind:        r.Kind,
			Role:        string(r.Role),
			Name:        r.Name,
			Description: r.Description,
			Buildable:   r.Buildable(),
		})
	}
	return observerproto.WelcomeMsg{
		Type:            observerproto.TypeWelcome,
		ProtocolVersion: observerproto.Version,
		SessionID:       sessionID,
		Tick:            s.engine.CurrentTick(),
		Grid: observerproto.GridParams{
			Width:          cfg.Width,
			Height:         cfg.Height,
			FrameRateHz:    cfg.FrameRateHz,
			TicksPerSecond: cfg.TicksPerSecond,
		},
		Catalog:       entries,
		CatalogDigest: cat.Digest,
	}
}

func (s *Server) stateMsg(sum factory.TickSummary) observerproto.StateMsg {
	return observerproto.StateMsg{
		Type:            observerproto.TypeState,
		ProtocolVersion: observerproto.Version,
		Tick:            s.engine.CurrentTick(),
		Cells:           s.engine.Cells(),
		Exported:        sum.Exported,
		Delivered:       sum.Delivered,
		FellOff:         sum.FellOff,
	}
}

// BootstrapHandler serves the WELCOME payload (without a session) over HTTP GET.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.welcome(""))
	}
}

// Publish pushes the grid state to every session every PushEveryFrames calls.
// Slow clients only ever hold the latest state.
func (s *Server) Publish(sum factory.TickSummary) {
	n := s.frames.Add(1)
	if n%uint64(s.opts.PushEveryFrames) != 0 {
		return
	}
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}
	b, err := json.Marshal(s.stateMsg(sum))
	if err != nil {
		s.logf("observer: encode state: %v", err)
		return
	}
	for _, sess := range targets {
		sendLatest(sess.stateOut, b)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sess := &session{
			id:        "O-" + uuid.NewString(),
			actor:     strings.TrimSpace(sub.Actor),
			stateOut:  make(chan []byte, 1),
			resultOut: make(chan []byte, 64),
			limiter:   rate.NewLimiter(rate.Limit(s.opts.CommandRate), s.opts.CommandBurst),
		}
		if sess.actor == "" {
			sess.actor = sess.id
		}
		if !s.register(sess) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.unregister(sess)
		s.logf("observer: %s subscribed (actor=%s)", sess.id, sess.actor)

		if err := writeJSON(conn, s.welcome(sess.id)); err != nil {
			return
		}
		if err := writeJSON(conn, s.stateMsg(factory.TickSummary{})); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-sess.resultOut:
				case b = <-sess.stateOut:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop: commands and SUBSCRIBE refreshes.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := observerproto.DecodeBase(msg)
			if err != nil || base.ProtocolVersion != observerproto.Version {
				s.reply(sess, observerproto.ResultMsg{Code: observerproto.CodeBadRequest, Message: "bad message"})
				continue
			}
			switch base.Type {
			case observerproto.TypeSubscribe:
				b, _ := json.Marshal(s.stateMsg(factory.TickSummary{}))
				sendLatest(sess.stateOut, b)
			case observerproto.TypeCommand:
				var cmd observerproto.CommandMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					s.reply(sess, observerproto.ResultMsg{Code: observerproto.CodeBadRequest, Message: "bad command"})
					continue
				}
				s.reply(sess, s.handleCommand(sess, cmd))
			default:
				s.reply(sess, observerproto.ResultMsg{Code: observerproto.CodeBadRequest, Message: "unknown type " + base.Type})
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	if len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		return false
	}
	s.sessions[sess.id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetObservers(n)
	}
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	n := len(s.sessions)
	s.mu.Unlock()
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetObservers(n)
	}
	s.logf("observer: %s left", sess.id)
}

// SessionIDs returns the connected session ids in sorted order.
func (s *Server) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Server) handleCommand(sess *session, cmd observerproto.CommandMsg) observerproto.ResultMsg {
	res := observerproto.ResultMsg{ID: cmd.ID}
	action := strings.ToUpper(strings.TrimSpace(cmd.Action))
	if !sess.limiter.Allow() {
		res.Code = observerproto.CodeRateLimited
		res.Message = "too many commands"
		s.record(sess, s.engine.CurrentTick(), action, cmd, res.Code)
		return res
	}

	ed := factory.Edit{Action: action, X: cmd.X, Y: cmd.Y, Kind: cmd.Kind}
	switch action {
	case observerproto.ActionPlace:
		if cmd.Kind == "" {
			res.Code, res.Message = observerproto.CodeBadRequest, "missing kind"
			break
		}
		ed.Dir = factory.DefaultDirection
		if cmd.Direction != "" {
			d, ok := direction.Parse(cmd.Direction)
			if !ok {
				res.Code, res.Message = observerproto.CodeBadRequest, "bad direction"
				break
			}
			ed.Dir = d
		}
	case observerproto.ActionRotate, observerproto.ActionRemove:
	default:
		res.Code, res.Message = observerproto.CodeBadRequest, "unknown action"
	}
	if res.Code != "" {
		s.record(sess, s.engine.CurrentTick(), action, cmd, res.Code)
		return res
	}
	tick, err := s.engine.Apply(ed)
	if err != nil {
		res.Code, res.Message = factory.Code(err), err.Error()
	}
	res.OK = res.Code == ""
	s.record(sess, tick, action, cmd, res.Code)
	return res
}

func (s *Server) record(sess *session, tick uint64, action string, cmd observerproto.CommandMsg, code string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveEdit(action, code)
	}
	if s.opts.Audit != nil {
		s.opts.Audit(factory.AuditEntry{
			Tick:      tick,
			Actor:     sess.actor,
			Action:    action,
			X:         cmd.X,
			Y:         cmd.Y,
			Kind:      cmd.Kind,
			Direction: cmd.Direction,
			Code:      code,
		})
	}
}

func (s *Server) reply(sess *session, res observerproto.ResultMsg) {
	res.Type = observerproto.TypeResult
	res.ProtocolVersion = observerproto.Version
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	select {
	case sess.resultOut <- b:
	default:
		s.logf("observer: %s result queue full, dropping %s", sess.id, res.ID)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
