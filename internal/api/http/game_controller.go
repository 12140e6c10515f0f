package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/clipguess/internal/api/http/converter"
	"github.com/immxrtalbeast/clipguess/internal/realtime"
	"github.com/immxrtalbeast/clipguess/internal/service"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
	"github.com/segmentio/encoding/json"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = time.Minute
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	commandTimeout = 15 * time.Second
)

var errThrottled = &service.Error{Code: "throttled", Message: "slow down"}

type clientFrame struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type commandHandler func(ctx context.Context, sessionID string, data json.RawMessage) (any, error)

type GameController struct {
	game     service.GameInteractor
	hub      *realtime.Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
	log      *slog.Logger
	commands map[string]commandHandler
}

func NewGameController(game service.GameInteractor, hub *realtime.Hub, commandsPerSecond float64, burst int, log *slog.Logger) *GameController {
	c := &GameController{
		game:     game,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limit: rate.Limit(commandsPerSecond),
		burst: burst,
		log:   log,
	}
	c.commands = c.routes()
	return c
}

// Serve upgrades the request and runs the session until the client goes away.
func (c *GameController) Serve(ctx *gin.Context) {
	const op = "http.game.Serve"

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("failed to upgrade connection", slog.String("op", op), sl.Err(err))
		return
	}

	session := c.hub.Register()
	log := c.log.With(slog.String("op", op), slog.String("session_id", session.ID))
	log.Debug("session connected", slog.String("remote", ctx.ClientIP()))

	go c.writePump(conn, session, log)

	c.readLoop(conn, session.ID, log)

	c.hub.Unregister(session.ID)
	c.game.Disconnect(session.ID)
	log.Debug("session closed")
}

func (c *GameController) readLoop(conn *websocket.Conn, sessionID string, log *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(c.limit, c.burst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("connection lost", sl.Err(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(sessionID, converter.AckError("", service.ErrInvalidInput.WithMessage("malformed frame")))
			continue
		}
		if !limiter.Allow() {
			c.reply(sessionID, converter.AckError(frame.ID, errThrottled))
			continue
		}
		c.dispatch(sessionID, frame, log)
	}
}

func (c *GameController) dispatch(sessionID string, frame clientFrame, log *slog.Logger) {
	handler, ok := c.commands[frame.Type]
	if !ok {
		c.reply(sessionID, converter.AckError(frame.ID, service.ErrInvalidInput.WithMessage("unknown command")))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := handler(ctx, sessionID, frame.Data)
	if err != nil {
		var gameErr *service.Error
		if !errors.As(err, &gameErr) {
			log.Error("command failed", slog.String("command", frame.Type), sl.Err(err))
		}
		c.reply(sessionID, converter.AckError(frame.ID, err))
		return
	}
	c.reply(sessionID, converter.Ack(frame.ID, res))
}

func (c *GameController) reply(sessionID string, frame converter.AckFrame) {
	if !c.hub.Send(sessionID, frame) {
		c.log.Warn("ack dropped", slog.String("session_id", sessionID), slog.String("id", frame.ID))
	}
}

func (c *GameController) writePump(conn *websocket.Conn, session *realtime.Session, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				log.Error("failed to encode frame", sl.Err(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
