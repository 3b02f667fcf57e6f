package rwp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/replay/stream"
)

// Server is the RWP server. It upgrades HTTP requests to WebSocket
// connections, authenticates them, and runs the frame loop against the
// engine via [Handler]. Broker events flow back to subscribed clients
// as event frames.
type Server struct {
	broker       *stream.Broker
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	basePath     string
}

// NewServer creates a new RWP server.
func NewServer(broker *stream.Broker, handler *Handler, opts ...Option) *Server {
	s := &Server{
		broker:       broker,
		handler:      handler,
		defaultCodec: &JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		basePath:     "/rwp",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = &NoopAuthenticator{}
	}
	handler.SetConnections(s.conns)
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// Mount registers the RWP endpoints on an HTTP mux: the WebSocket
// upgrade at the base path and the one-shot RPC endpoint at
// <basePath>/rpc.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.Handle(s.basePath, s)
	mux.Handle(s.basePath+"/rpc", http.HandlerFunc(s.handleHTTPRPC))
}

// ServeHTTP upgrades the request to a WebSocket connection and runs the
// frame loop until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("RWP upgrade failed", slog.String("error", err.Error()))
		return
	}

	go func() {
		defer conn.Close() //nolint:errcheck // connection teardown
		// The request context dies with the HTTP handler; the
		// connection outlives it.
		if serveErr := s.serveConn(context.Background(), conn); serveErr != nil {
			s.logger.Debug("RWP connection closed", slog.String("error", serveErr.Error()))
		}
	}()
}

// wsPeer serializes concurrent writes to a single WebSocket connection
// (the frame loop and the event forwarder both write).
type wsPeer struct {
	conn net.Conn
	mu   sync.Mutex
}

func (p *wsPeer) write(op ws.OpCode, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wsutil.WriteServerMessage(p.conn, op, data)
}

// writeFrame encodes and writes a frame using the negotiated codec.
// JSON travels as text frames, msgpack as binary frames.
func (s *Server) writeFrame(peer *wsPeer, codec Codec, frame *Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	op := ws.OpText
	if codec.Name() != CodecNameJSON {
		op = ws.OpBinary
	}
	return peer.write(op, data)
}

// serveConn authenticates a freshly upgraded connection and runs its
// frame loop.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	peer := &wsPeer{conn: conn}
	connID := "ws-" + generateFrameID()
	s.logger.Info("RWP WebSocket connected", slog.String("conn_id", connID))

	// Wait for auth frame. Auth frames are always JSON (before codec
	// negotiation).
	authData, _, readErr := wsutil.ReadClientData(conn)
	if readErr != nil {
		return fmt.Errorf("rwp: read auth frame: %w", readErr)
	}

	var authFrame Frame
	if err := json.Unmarshal(authData, &authFrame); err != nil {
		s.writeJSON(peer, NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return fmt.Errorf("rwp: unmarshal auth frame: %w", err)
	}

	if authFrame.Method != MethodAuth {
		s.writeJSON(peer, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return fmt.Errorf("rwp: expected auth frame, got %q", authFrame.Method)
	}

	// Parse auth request.
	var authReq AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &authReq); err != nil {
			s.writeJSON(peer, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return err
		}
	}

	// Authenticate.
	token := authReq.Token
	if token == "" {
		token = authFrame.Token
	}
	identity, authErr := s.auth.Authenticate(ctx, token)
	if authErr != nil {
		s.writeJSON(peer, NewErrorFrame(authFrame.ID, ErrCodeUnauthorized, "authentication failed"))
		return fmt.Errorf("rwp: auth failed: %w", authErr)
	}

	// Negotiate codec.
	codec := s.defaultCodec
	if authReq.Format != "" {
		codec = GetCodec(authReq.Format)
	}

	// Create connection state.
	rwpConn := NewConnection(connID, identity, codec)
	s.conns.Add(rwpConn)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("RWP WebSocket disconnected", slog.String("conn_id", connID))
	}()

	// Send auth response.
	resp, respErr := NewResponseFrame(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return fmt.Errorf("rwp: marshal auth response: %w", respErr)
	}
	if err := s.writeFrame(peer, codec, resp); err != nil {
		return err
	}

	s.logger.Info("RWP authenticated",
		slog.String("conn_id", connID),
		slog.String("subject", identity.Subject),
		slog.String("codec", codec.Name()),
	)

	// Create a subscriber for this connection and start a goroutine
	// to forward broker events to the WebSocket.
	sub := s.broker.Subscribe(connID)
	go s.forwardEvents(peer, codec, sub)

	// Frame processing loop.
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return nil // Connection closed.
		}

		rwpConn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			errFrame := NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error())
			if writeErr := s.writeFrame(peer, codec, errFrame); writeErr != nil {
				s.logger.Warn("failed to write error frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		// Handle ping/pong.
		if frame.Type == FramePing {
			pong := &Frame{
				ID:        generateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			}
			if writeErr := s.writeFrame(peer, codec, pong); writeErr != nil {
				s.logger.Warn("failed to write pong frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		// Check authorization for the method.
		if frame.Method != "" {
			reqScope := RequiredScope(frame.Method)
			if reqScope != "" && !identity.HasScope(reqScope) {
				errFrame := NewErrorFrame(frame.ID, ErrCodeForbidden, "insufficient permissions")
				if writeErr := s.writeFrame(peer, codec, errFrame); writeErr != nil {
					s.logger.Warn("failed to write forbidden frame", slog.String("error", writeErr.Error()))
				}
				continue
			}
		}

		// Handle credits replenishment.
		if frame.Credits > 0 {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		// Dispatch to handler.
		respFrame := s.handler.Handle(ctx, frame, rwpConn)
		if respFrame != nil {
			// Handle subscribe/unsubscribe side effects.
			if frame.Method == MethodSubscribe && respFrame.Type == FrameResponse {
				var subReq SubscribeRequest
				if json.Unmarshal(frame.Data, &subReq) == nil {
					s.broker.SubscribeTo(connID, subReq.Channel)
					rwpConn.AddSubscription(subReq.Channel)
					if subReq.Credits > 0 {
						sub.AddCredits(int64(subReq.Credits))
					}
				}
			} else if frame.Method == MethodUnsubscribe && respFrame.Type == FrameResponse {
				var unsubReq UnsubscribeRequest
				if json.Unmarshal(frame.Data, &unsubReq) == nil {
					s.broker.Unsubscribe(connID, unsubReq.Channel)
					rwpConn.RemoveSubscription(unsubReq.Channel)
				}
			}

			if writeErr := s.writeFrame(peer, codec, respFrame); writeErr != nil {
				s.logger.Warn("failed to write response frame", slog.String("error", writeErr.Error()))
			}
		}
	}
}

// writeJSON writes a frame as JSON, logging failures. Used before codec
// negotiation completes.
func (s *Server) writeJSON(peer *wsPeer, frame *Frame) {
	if err := s.writeFrame(peer, &JSONCodec{}, frame); err != nil {
		s.logger.Warn("failed to write frame", slog.String("error", err.Error()))
	}
}

// forwardEvents reads from the subscriber channel and writes events
// to the WebSocket connection.
func (s *Server) forwardEvents(peer *wsPeer, codec Codec, sub *stream.Subscriber) {
	for evt := range sub.C() {
		evtFrame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if writeErr := s.writeFrame(peer, codec, evtFrame); writeErr != nil {
			return // Connection gone.
		}
	}
}

// handleHTTPRPC handles one-shot HTTP RPC requests for simple operations.
func (s *Server) handleHTTPRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeRPCResponse(w, http.StatusMethodNotAllowed, NewErrorFrame("", ErrCodeBadRequest, "POST required"))
		return
	}

	// Parse the frame from the request body.
	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeRPCResponse(w, http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
		return
	}

	// Authenticate.
	token := frame.Token
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	identity, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeRPCResponse(w, http.StatusUnauthorized, NewErrorFrame(frame.ID, ErrCodeUnauthorized, "unauthorized"))
		return
	}

	// Check authorization.
	reqScope := RequiredScope(frame.Method)
	if reqScope != "" && !identity.HasScope(reqScope) {
		writeRPCResponse(w, http.StatusForbidden, NewErrorFrame(frame.ID, ErrCodeForbidden, "forbidden"))
		return
	}

	// Create a temporary connection for scope.
	conn := NewConnection("rpc-"+generateFrameID(), identity, &JSONCodec{})

	// Dispatch.
	resp := s.handler.Handle(r.Context(), &frame, conn)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}
	writeRPCResponse(w, status, resp)
}

func writeRPCResponse(w http.ResponseWriter, status int, frame *Frame) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(frame) //nolint:errcheck // client gone is not actionable
}
