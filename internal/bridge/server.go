// Package bridge connects the extension shim to the service over a websocket.
// The shim forwards browser callbacks as events and executes the commands it
// receives back; blocking webRequest events are answered inline.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/action"
	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/internal/messaging"
	"github.com/shehryarbajwa/review-background/internal/webrequest"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// ErrNoHost is returned by host commands while no shim is connected
var ErrNoHost = errors.New("no extension host connected")

// Server owns the single live connection to the extension shim
type Server struct {
	upgrader websocket.Upgrader

	actions  *action.Controller
	requests *webrequest.Interceptor
	router   *messaging.Router

	mu   sync.RWMutex
	conn *hostConn
	log  *zap.Logger
}

type hostConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (c *hostConn) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

func (c *hostConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// NewServer creates a bridge accepting connections from allowedOrigin.
// An empty allowedOrigin accepts any origin.
func NewServer(allowedOrigin string, logger *zap.Logger) *Server {
	allowedOrigin = strings.TrimSuffix(allowedOrigin, "/")
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || strings.HasPrefix(origin, allowedOrigin)
			},
		},
		log: logging.OrNop(logger),
	}
}

// Bind attaches the components events are dispatched to.
// It must be called before the first connection is accepted.
func (s *Server) Bind(actions *action.Controller, requests *webrequest.Interceptor, router *messaging.Router) {
	s.actions = actions
	s.requests = requests
	s.router = router
}

// Connected reports whether a shim is currently attached
func (s *Server) Connected() bool {
	return s.current() != nil
}

// HandleConnection upgrades the request and serves events until the socket closes.
// A newer connection replaces the current one.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade bridge connection", zap.Error(err))
		return
	}

	conn := &hostConn{ws: ws, done: make(chan struct{})}
	s.swap(conn)
	s.log.Info("extension host connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		close(conn.done)
		s.release(conn)
		ws.Close()
		s.log.Info("extension host disconnected", zap.String("remote", r.RemoteAddr))
	}()

	go s.keepAlive(conn)

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("bridge read failed", zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := s.handle(conn, env); err != nil {
			s.log.Warn("bridge event dropped",
				zap.String("type", env.Type),
				zap.String("id", env.ID),
				zap.Error(err))
		}
	}
}

func (s *Server) keepAlive(conn *hostConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handle(conn *hostConn, env Envelope) error {
	switch env.Type {
	case TypeActionClicked:
		var ev clickedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return err
		}
		s.actions.OnClicked(ev.Tab)

	case TypeTabRemoved:
		var ev tabEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return err
		}
		s.actions.OnTabRemoved(ev.TabID)

	case TypeTabUpdated:
		var ev tabEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return err
		}
		s.actions.OnTabUpdated(ev.TabID, ev.ChangeInfo)

	case TypeTabReplaced:
		var ev replacedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return err
		}
		s.actions.OnTabReplaced(ev.AddedTabID, ev.RemovedTabID)

	case TypeBeforeRequest, TypeBeforeSendHeaders, TypeHeadersReceived:
		var details models.RequestDetails
		if err := json.Unmarshal(env.Payload, &details); err != nil {
			// Unblock the request even when its details cannot be read.
			_ = s.reply(conn, env.ID, models.BlockingResponse{})
			return err
		}
		return s.reply(conn, env.ID, s.intercept(env.Type, details))

	case TypeRuntimeMessage:
		var ev messageEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return conn.write(Envelope{ID: env.ID, Type: TypeNoReply})
		}
		return s.dispatch(conn, env.ID, ev)

	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	return nil
}

func (s *Server) intercept(typ string, details models.RequestDetails) models.BlockingResponse {
	switch typ {
	case TypeBeforeRequest:
		return s.requests.OnBeforeRequest(details)
	case TypeBeforeSendHeaders:
		return s.requests.OnBeforeSendHeaders(details)
	default:
		return s.requests.OnHeadersReceived(details)
	}
}

func (s *Server) dispatch(conn *hostConn, id string, ev messageEvent) error {
	var responded atomic.Bool
	respond := func(v any) {
		responded.Store(true)
		if err := s.reply(conn, id, v); err != nil {
			s.log.Debug("message reply not delivered", zap.String("id", id), zap.Error(err))
		}
	}

	keepOpen := s.router.Dispatch(ev.Message, ev.Sender, respond)
	if !keepOpen && !responded.Load() {
		return conn.write(Envelope{ID: id, Type: TypeNoReply})
	}
	return nil
}

func (s *Server) reply(conn *hostConn, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.write(Envelope{ID: id, Type: TypeReply, Payload: payload})
}

// SendMessage implements action.Host
func (s *Server) SendMessage(tabID int, msg models.Message, opts models.SendOptions) error {
	return s.command(TypeSendMessage, sendMessageCommand{TabID: tabID, FrameID: opts.FrameID, Message: msg})
}

// InsertCSS implements action.Host
func (s *Server) InsertCSS(tabID int, file string) error {
	return s.command(TypeInsertCSS, fileCommand{TabID: tabID, File: file})
}

// ExecuteScript implements action.Host
func (s *Server) ExecuteScript(tabID int, file string) error {
	return s.command(TypeExecuteScript, fileCommand{TabID: tabID, File: file})
}

// SetIcon implements action.Host
func (s *Server) SetIcon(tabID int, path string) error {
	return s.command(TypeSetIcon, iconCommand{TabID: tabID, Path: path})
}

func (s *Server) command(typ string, payload any) error {
	conn := s.current()
	if conn == nil {
		return ErrNoHost
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typ, err)
	}
	if err := conn.write(Envelope{ID: uuid.NewString(), Type: typ, Payload: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", typ, err)
	}
	return nil
}

// Close disconnects the current shim, if any
func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.ws.Close()
	}
}

func (s *Server) current() *hostConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Server) swap(conn *hostConn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		s.log.Info("replacing previous extension host connection")
		old.writeMu.Lock()
		old.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"),
			time.Now().Add(writeWait))
		old.writeMu.Unlock()
		old.ws.Close()
	}
}

func (s *Server) release(conn *hostConn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}
