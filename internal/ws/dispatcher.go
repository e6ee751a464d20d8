package ws

import (
	"log"
	"time"

	"github.com/ideahub/chat-service/internal/apperr"
	"github.com/ideahub/chat-service/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. The msg parameter is the concrete struct returned by
// protocol.ParseClientMessage (e.g. protocol.SendMessageMsg). A non-nil
// return is translated into the structured error payload and delivered
// privately to the client; it never closes the connection.
type MessageHandler func(conn *Connection, msg interface{}) error

// MessageDispatcher routes incoming frames to registered handlers by message
// type. It owns the connection-boundary error policy: every handler failure,
// including panics, becomes an error payload on the originating connection.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
}

// NewMessageDispatcher creates a MessageDispatcher. The server reference may
// be nil at construction and set later via SetServer, supporting the
// initialization order where the dispatcher exists before the server.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
	}
}

// SetServer assigns the Server reference on the dispatcher.
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates a MessageHandler with a message type. An existing
// handler for the same type is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw
// bytes into a typed message, answers ping internally, enforces the
// per-frame authentication check, and routes everything else to the
// registered handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error session=%s: %v", conn.ID, err)
		d.SendError(conn, apperr.New(apperr.CodeValidationFailed, "invalid message format"))
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	// Defense in depth: the handshake path populates the context before any
	// frame is read, but no frame may reach a handler without it.
	if !conn.Authenticated() {
		d.SendError(conn, apperr.New(apperr.CodeNotAuthenticated, "connection is not authenticated"))
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q session=%s", msgType, conn.ID)
		d.SendError(conn, apperr.New(apperr.CodeValidationFailed, "unsupported message type"))
		return
	}

	d.invoke(conn, msgType, handler, msg)
}

// invoke runs a handler with panic recovery. A panicking handler yields a
// RUNTIME_ERROR payload; the connection stays open either way.
func (d *MessageDispatcher) invoke(conn *Connection, msgType string, handler MessageHandler, msg interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: handler panic type=%s session=%s: %v", msgType, conn.ID, r)
			d.SendError(conn, apperr.New(apperr.CodeRuntimeError, "internal error"))
		}
	}()

	if err := handler(conn, msg); err != nil {
		d.SendError(conn, err)
	}
}

// SendError translates err into the structured error payload and writes it
// to the client's private error destination (the originating connection).
func (d *MessageDispatcher) SendError(conn *Connection, err error) {
	e := apperr.From(err)
	data, merr := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    e.Code,
		Message: e.Message,
	})
	if merr != nil {
		log.Printf("ws: failed to build error message session=%s: %v", conn.ID, merr)
		return
	}
	if werr := conn.WriteMessage(data); werr != nil {
		log.Printf("ws: failed to send error message session=%s: %v", conn.ID, werr)
	}
}

// sendPong answers a client ping and refreshes the connection's LastPing.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.LastPing = time.Now()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Printf("ws: failed to build pong session=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send pong session=%s: %v", conn.ID, err)
	}
}
