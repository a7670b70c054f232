package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"cohortflow/internal/auth"
	"cohortflow/internal/domain"
	"cohortflow/internal/tasks"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type notifySubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WsHandler 把 worker 发布的导出通知推送给协调员。
// 连接建立后第一条消息必须是 {"type":"auth","token":"<access token>"}。
type WsHandler struct {
	pubsub         notifySubscriber
	issuer         *auth.Issuer
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

func NewWsHandler(pubsub notifySubscriber, issuer *auth.Issuer, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		pubsub:         pubsub,
		issuer:         issuer,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), r.Host, h.allowedOrigins)
		},
	}
	return h
}

// originAllowed 未配置白名单时只接受同源；没有 Origin 头的非浏览器客户端直接放行。
func originAllowed(origin, host string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) > 0 {
		return slices.Contains(allowed, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsReadyMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// wsCloseError 携带关闭帧要回给客户端的原因。
type wsCloseError struct {
	reason string
	err    error
}

func (e *wsCloseError) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *wsCloseError) Unwrap() error { return e.err }

func rejectSocket(reason string, err error) error {
	return &wsCloseError{reason: reason, err: err}
}

func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	claims, err := h.authenticate(conn)
	if err != nil {
		var closeErr *wsCloseError
		reason := "unauthorized"
		if errors.As(err, &closeErr) {
			reason = closeErr.reason
		}
		writeClose(conn, websocket.ClosePolicyViolation, reason)
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.String("user_id", claims.Subject))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 认证后客户端不再发送业务消息，读循环只用于感知断开。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.relay(ctx, conn, claims.Subject, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// authenticate 在超时内读取首条消息并校验令牌；只有已完成改密的协调员可以订阅。
func (h *WsHandler) authenticate(conn *websocket.Conn) (*auth.Claims, error) {
	if err := conn.SetReadDeadline(time.Now().Add(wsAuthTimeout)); err != nil {
		return nil, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, rejectSocket("auth required", err)
	}
	var msg wsAuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, rejectSocket("invalid auth payload", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return nil, rejectSocket("auth required", errors.New("first message is not an auth message"))
	}

	claims, err := h.issuer.Parse(msg.Token, auth.TokenTypeAccess)
	if err != nil {
		return nil, rejectSocket("unauthorized", err)
	}
	if claims.Role != domain.RoleCoordinator {
		return nil, rejectSocket("forbidden", fmt.Errorf("role %s cannot subscribe", claims.Role))
	}
	if claims.MustChangePassword {
		return nil, rejectSocket("password change required", errors.New("password change pending"))
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return claims, nil
}

// relay 订阅用户通知频道并转发，定时 ping 维持连接。
func (h *WsHandler) relay(ctx context.Context, conn *websocket.Conn, userID string, log *slog.Logger) error {
	channel := tasks.NotifyChannel(userID)
	sub := h.pubsub.Subscribe(ctx, channel)
	defer sub.Close()

	if err := conn.WriteJSON(wsReadyMessage{Type: "ready", UserID: userID}); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}
	log.Info("subscribed to export notifications", slog.String("channel", channel))

	messages := sub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			if !json.Valid([]byte(msg.Payload)) {
				log.Warn("dropping malformed notification", slog.String("channel", channel))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
