// Package ws pushes agent-version updates to browsers over Socket.IO.
// Clients are placed in a room per tenant when they connect, so events
// never cross tenants.
package ws

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"

	"go_agentos/internal/auth"
)

const namespace = "/"

// Server wraps the Socket.IO server
type Server struct {
	io     *socketio.Server
	tokens *auth.Tokens
	logger *logrus.Entry
	lister Lister
}

// NewServer creates the Socket.IO server and registers its handlers.
// lister may be nil, in which case list requests are answered with an error.
func NewServer(lister Lister, tokens *auth.Tokens, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
		},
	})

	s := &Server{
		io:     io,
		tokens: tokens,
		logger: logger.WithField("component", "ws"),
		lister: lister,
	}

	io.OnConnect(namespace, s.onConnect)
	io.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		s.logger.WithFields(logrus.Fields{"conn": c.ID(), "reason": reason}).Debug("Client disconnected")
	})
	io.OnError(namespace, func(c socketio.Conn, e error) {
		id := ""
		if c != nil {
			id = c.ID()
		}
		s.logger.WithError(e).WithField("conn", id).Warn("Socket.IO error")
	})
	io.OnEvent(namespace, EventRequestAgentVersions, s.handleRequestAgentVersions)

	return s
}

// onConnect re-reads the handshake token, which WrapWithAuth has already
// verified, to learn the tenant and join its room
func (s *Server) onConnect(c socketio.Conn) error {
	u := c.URL()
	token := tokenFrom(u.Query().Get("token"), c.RemoteHeader().Get("Authorization"))
	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.WithError(err).WithField("conn", c.ID()).Warn("Rejecting connection without valid token")
		return err
	}

	c.SetContext(claims)
	c.Join(tenantRoom(claims.TenantID))
	c.Emit("connected", map[string]interface{}{
		"ok":       true,
		"tenantId": claims.TenantID,
	})

	s.logger.WithFields(logrus.Fields{
		"conn":      c.ID(),
		"user":      claims.Username,
		"tenant_id": claims.TenantID,
	}).Info("Client connected")
	return nil
}

// Serve runs the Socket.IO event loop until Close is called
func (s *Server) Serve() {
	go func() {
		if err := s.io.Serve(); err != nil {
			s.logger.WithError(err).Error("Socket.IO server stopped")
		}
	}()
	s.logger.Info("Socket.IO server started")
}

// Close shuts the Socket.IO server down
func (s *Server) Close() error {
	return s.io.Close()
}

// Handler returns the HTTP handler, guarded by the JWT handshake check
func (s *Server) Handler() http.Handler {
	return WrapWithAuth(s.io, s.tokens, s.logger)
}

// Publisher returns a Publisher that broadcasts through this server
func (s *Server) Publisher() *Publisher {
	return NewPublisher(s.io, s.logger)
}

func tenantRoom(tenantID string) string {
	return "tenant:" + tenantID
}
