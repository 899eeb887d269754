package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

// maxCloseReason is the largest close reason a control frame can carry.
const maxCloseReason = 123

// WSHandler upgrades HTTP connections and bridges them to a room session.
type WSHandler struct {
	dispatcher *core.Dispatcher
	cfg        *config.Config
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(dispatcher *core.Dispatcher, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{dispatcher: dispatcher, cfg: cfg, log: logger}
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	if len(h.cfg.OriginPatterns) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns}
}

// ServeHTTP handles GET /api/rooms/{room}/websocket?name=<display name>.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	room := r.PathValue("room")
	name := r.URL.Query().Get("name")

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wc := newWSConn(conn)
	session, err := h.dispatcher.Connect(ctx, room, wc, name)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("ws connect rejected")
		status := websocket.StatusInternalError
		if errors.Is(err, core.ErrInvalidRoom) {
			status = websocket.StatusPolicyViolation
		}
		_ = conn.Close(status, truncateReason(err.Error()))
		return
	}

	log := h.log.With().
		Str("room", room).
		Str("session_id", session.ID).
		Str("name", session.Name).
		Logger()
	log.Debug().Msg("ws session opened")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, &log)
	}()
	go func() {
		errCh <- session.Pump(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason, clean := closeDetails(err)
	// From here on the close frame below carries the status.
	wc.detach()
	h.dispatcher.Disconnect(session, int(status), reason, clean)
	if !clean {
		log.Warn().Err(err).Int("status", int(status)).Msg("ws connection closed with error")
	}

	_ = conn.Close(status, truncateReason(reason))
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, log *zerolog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		body, ok := proto.DecodeMessage(data)
		if !ok {
			log.Debug().Int("bytes", len(data)).Msg("dropped inbound frame")
			continue
		}

		err = h.dispatcher.Post(ctx, session, body)
		switch {
		case err == nil, errors.Is(err, core.ErrEmptyMessage):
		case errors.Is(err, core.ErrRoomClosed), errors.Is(err, core.ErrNotInRoom), errors.Is(err, core.ErrSessionClosed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// The author already received an error frame.
			log.Warn().Err(err).Msg("post failed")
		}
	}
}

// closeDetails maps the error that ended a session to a close status, a
// reason and whether the peer went away cleanly.
func closeDetails(err error) (websocket.StatusCode, string, bool) {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return websocket.StatusNormalClosure, "closing", true
	}

	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		clean := closeErr.Code == websocket.StatusNormalClosure || closeErr.Code == websocket.StatusGoingAway
		return closeErr.Code, closeErr.Reason, clean
	}

	if errors.Is(err, core.ErrSessionClosed) || errors.Is(err, core.ErrRoomClosed) {
		return websocket.StatusGoingAway, err.Error(), true
	}
	return websocket.StatusInternalError, err.Error(), false
}

func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	return reason[:maxCloseReason]
}
