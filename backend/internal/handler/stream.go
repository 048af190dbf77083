package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
	"github.com/parley-dev/parley/shared/middleware/metrics"
	"github.com/parley-dev/parley/shared/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 64 << 10
	sendQueueSize  = 256
)

var errStreamClosed = errors.New("stream closed")

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts same-host upgrades and the configured CORS origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(h.cfg.Public.CORSOrigins, origin)
}

// Stream upgrades to a WebSocket carrying turns for one conversation.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	conv, err := h.conversations.Get(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		logger.Log.Debug("websocket upgrade failed", "error", err)
		return
	}
	metrics.StreamConnected()
	defer metrics.StreamDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &streamSession{
		h:      h,
		id:     uuid.NewString(),
		conn:   conn,
		user:   user.Id,
		conv:   conv.Id,
		send:   make(chan outbound, sendQueueSize),
		closed: make(chan struct{}),
	}
	logger.Log.Info("stream opened", "stream_id", s.id, "conversation_id", conv.Id, "user_id", user.Id)

	go s.writePump()
	count := conv.MessageCount
	s.enqueue(ctx, api.StreamFrame{Type: api.FrameConnection, Status: "connected", ConversationId: conv.Id, MessageCount: &count})

	s.readPump(ctx)

	// in-flight turns see the cancellation and cancel their runs
	cancel()
	s.turns.Wait()
	close(s.send)
	logger.Log.Info("stream closed", "stream_id", s.id, "conversation_id", conv.Id)
}

// outbound is a queued frame; last asks the writer to close the socket after it.
type outbound struct {
	frame api.StreamFrame
	last  bool
}

type streamSession struct {
	h    *Handler
	id   string
	conn *websocket.Conn
	user domain.UserId
	conv domain.ConversationId

	send      chan outbound
	closed    chan struct{}
	closeOnce sync.Once
	turns     sync.WaitGroup
}

func (s *streamSession) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// enqueue blocks while the writer is behind, deltas are never dropped.
func (s *streamSession) enqueue(ctx context.Context, f api.StreamFrame) error {
	return s.push(ctx, outbound{frame: f})
}

// enqueueLast queues f and then closes the socket.
func (s *streamSession) enqueueLast(ctx context.Context, f api.StreamFrame) error {
	return s.push(ctx, outbound{frame: f, last: true})
}

func (s *streamSession) push(ctx context.Context, o outbound) error {
	select {
	case s.send <- o:
		return nil
	case <-s.closed:
		return errStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *streamSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.markClosed()
		s.conn.Close()
	}()

	for {
		select {
		case o, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(o.frame); err != nil {
				logger.Log.Debug("stream write failed", "stream_id", s.id, "error", err)
				return
			}
			if o.last {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, o.frame.Kind))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *streamSession) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxClientFrame)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("stream read failed", "stream_id", s.id, "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame api.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.enqueue(ctx, errorFrame(internal_errors.BadRequest("frame is invalid json")))
			continue
		}

		switch frame.Type {
		case api.FramePing:
			s.enqueue(ctx, api.StreamFrame{Type: api.FramePong})
		case api.FrameMessage:
			s.turns.Add(1)
			go s.runTurn(ctx, frame)
		default:
			s.enqueue(ctx, errorFrame(internal_errors.BadRequest("unknown frame type "+frame.Type)))
		}
	}
}

// runTurn drives one streamed turn. A failed turn ends the stream after its
// error frame.
func (s *streamSession) runTurn(ctx context.Context, frame api.ClientFrame) {
	defer s.turns.Done()

	text := strings.TrimSpace(frame.Content)
	if text == "" && len(frame.FileIds) == 0 {
		s.enqueue(ctx, errorFrame(internal_errors.BadRequest("message needs content or files")))
		return
	}

	req := domain.TurnRequest{User: s.user, ConversationId: s.conv, Text: text, FileIds: frame.FileIds}
	result, err := s.h.turns.Stream(ctx, req, func(block domain.ContentBlock) error {
		return s.enqueue(ctx, api.FrameFromBlock(block))
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case internal_errors.KindOf(err) == internal_errors.KindTurnInProgress:
			// the running turn keeps the stream
			s.enqueue(ctx, errorFrame(err))
		default:
			s.enqueueLast(ctx, errorFrame(err))
		}
		return
	}

	s.enqueue(ctx, api.StreamFrame{
		Type:       api.FrameComplete,
		MessageId:  result.MessageId,
		Content:    result.Text,
		HTML:       s.h.renderer.Render(result.Text),
		TurnHandle: result.TurnHandle,
	})

	var images []domain.MessageAttachment
	for _, a := range result.Attachments {
		if a.Kind == domain.AttachmentImage {
			images = append(images, a)
		}
	}
	if len(images) > 0 {
		s.enqueue(ctx, api.StreamFrame{Type: api.FrameImageOutput, Images: images})
	}
}

func errorFrame(err error) api.StreamFrame {
	msg := "Internal error"
	if e, ok := internal_errors.As(err); ok {
		msg = e.Message
	} else {
		logger.Log.Error("stream turn failed", "error", err)
	}
	return api.StreamFrame{Type: api.FrameError, Kind: internal_errors.KindOf(err), Message: msg}
}
