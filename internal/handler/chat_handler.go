package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/config"
	"github.com/sbk2k1/sbk-assistant/internal/middleware"
	"github.com/sbk2k1/sbk-assistant/internal/service"
)

const (
	FrameToken   = "token"
	FrameSources = "sources"
	FrameError   = "error"
	FrameEnd     = "end"
)

const (
	chatWriteWait     = 10 * time.Second
	chatMaxMessage    = 64 * 1024
	chatQuestionQueue = 8
)

// Frame is one server message of the framed chat protocol.
type Frame struct {
	Type    string           `json:"type"`
	Data    string           `json:"data,omitempty"`
	Sources []service.Source `json:"sources,omitempty"`
	Code    int              `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

type ChatOptions struct {
	Protocol       string
	ReturnSources  bool
	TurnTimeout    time.Duration
	AllowedOrigins []string
}

type ChatHandler struct {
	chat     *service.ChatService
	opts     ChatOptions
	upgrader websocket.Upgrader
}

func NewChatHandler(chat *service.ChatService, opts ChatOptions) *ChatHandler {
	if opts.Protocol == "" {
		opts.Protocol = config.ProtocolFramed
	}
	return &ChatHandler{
		chat: chat,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(opts.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *ChatHandler) framed() bool {
	return h.opts.Protocol != config.ProtocolRaw
}

// Serve upgrades the request and answers each text message as a question, one
// at a time, until the client goes away.
func (h *ChatHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(chatMaxMessage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logutil.GetLogger(ctx).With(zap.String("remote", c.ClientIP()))

	sess, err := h.chat.Open(ctx)
	if err != nil {
		logger.Error("open chat session failed", zap.Error(err))
		if h.framed() {
			_ = h.writeError(conn, err)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(chatWriteWait))
		return
	}
	defer func() {
		_ = sess.Close()
		logger.Info("chat session closed", zap.String("session_id", sess.ID()))
	}()

	questions := make(chan string, chatQuestionQueue)
	go readPump(ctx, cancel, conn, questions)

	for {
		select {
		case <-ctx.Done():
			return
		case question, ok := <-questions:
			if !ok {
				return
			}
			if !h.answer(ctx, conn, sess, question) {
				return
			}
		}
	}
}

// readPump keeps reading so a disconnect cancels ctx even while a turn is
// streaming. Only text frames are questions.
func readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- string) {
	defer cancel()
	defer close(out)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logutil.GetLogger(ctx).Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case out <- string(data):
		case <-ctx.Done():
			return
		}
	}
}

// answer streams one turn. It returns false when the connection should end.
func (h *ChatHandler) answer(ctx context.Context, conn *websocket.Conn, sess *service.Session, question string) bool {
	turnCtx := ctx
	if h.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, h.opts.TurnTimeout)
		defer cancel()
	}
	ans, err := sess.Stream(turnCtx, question, func(token string) error {
		if h.framed() {
			return h.write(conn, Frame{Type: FrameToken, Data: token})
		}
		_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(token))
	})
	if ctx.Err() != nil {
		return false
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sess.ID()))
	if err != nil {
		logger.Error("chat turn failed", zap.Error(err))
		if !h.framed() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, classifyError(err).message),
				time.Now().Add(chatWriteWait))
			return false
		}
		if werr := h.writeError(conn, err); werr != nil {
			return false
		}
	} else if h.framed() && h.opts.ReturnSources {
		if werr := h.write(conn, Frame{Type: FrameSources, Sources: ans.Sources}); werr != nil {
			return false
		}
	}
	if h.framed() {
		if werr := h.write(conn, Frame{Type: FrameEnd}); werr != nil {
			return false
		}
	}
	return true
}

func (h *ChatHandler) writeError(conn *websocket.Conn, err error) error {
	info := classifyError(err)
	return h.write(conn, Frame{Type: FrameError, Code: info.code, Message: info.message})
}

func (h *ChatHandler) write(conn *websocket.Conn, frame Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
	return conn.WriteJSON(frame)
}
