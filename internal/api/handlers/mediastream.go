package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/bridge"
	"github.com/dialworks/leadagent/pkg/env"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/realtime"
	"github.com/dialworks/leadagent/pkg/utils"
)

// VoiceAnswer is the answer webhook for outbound calls. It returns TwiML
// instructing the provider to open a media stream to our WebSocket endpoint,
// passing the lead's number as a custom parameter.
func (h *Handler) VoiceAnswer(c *gin.Context) {
	to := c.PostForm("To")
	if to == "" {
		to = c.Query("To")
	}
	phone := utils.CanonicalPhone(to)

	wsURL := wsBaseURL(h.cfg.PublicBaseURL) + "/media-stream"

	h.logger.Info("Answering call with media stream",
		zap.String("ws_url", wsURL),
		logger.MaskPhoneIfPresent("phone", phone),
	)

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="%s">
      <Parameter name="phone" value="%s" />
    </Stream>
  </Connect>
</Response>`, wsURL, phone)

	c.Data(http.StatusOK, "text/xml", []byte(twiml))
}

// wsBaseURL rewrites an http(s) base URL to its ws(s) form.
func wsBaseURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasPrefix(base, "https") {
		return "wss" + base[5:]
	}
	if strings.HasPrefix(base, "http") {
		return "ws" + base[4:]
	}
	return base
}

// createStreamUpgrader builds the WebSocket upgrader for media streams. The
// telephony provider connects server-to-server and sends no Origin header.
func createStreamUpgrader(cfg *env.Config) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || cfg.AppEnv == "development" {
				return true
			}
			if cfg.PublicBaseURL != "" && origin == cfg.PublicBaseURL {
				return true
			}
			logger.Log.Warn("Media stream rejected, invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// MediaStream is the WebSocket endpoint the telephony provider connects to.
// It dials the realtime AI service and runs one bridge session until either
// side hangs up.
func (h *Handler) MediaStream(c *gin.Context) {
	upgrader := createStreamUpgrader(h.cfg)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade media stream",
			zap.Error(err),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		return
	}

	h.logger.Info("Media stream connected", zap.String("remote_addr", c.Request.RemoteAddr))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	aiConn, err := realtime.Dial(dialCtx, h.cfg.OpenAIApiKey, h.cfg.RealtimeModel, h.logger)
	dialCancel()
	if err != nil {
		h.logger.Error("Failed to connect to realtime AI", zap.Error(err))
		conn.Close()
		return
	}

	b := bridge.New(
		bridge.NewWSConn(conn),
		aiConn,
		h.store,
		h.recorder,
		h.transcriber,
		bridge.Options{
			Capabilities: bridge.Capabilities{
				RecordAudio:         h.cfg.RecordCalls,
				TranscribeAfterCall: h.cfg.TranscribeCalls,
				ProviderTTS:         h.cfg.ProviderTTS,
			},
			Instructions:       h.cfg.SystemInstructions,
			Voice:              h.cfg.RealtimeVoice,
			Greeting:           h.cfg.GreetingText,
			SessionUpdateDelay: time.Duration(h.cfg.SessionUpdateDelayMs) * time.Millisecond,
			NudgeDelay:         time.Duration(h.cfg.NudgeDelayMs) * time.Millisecond,
			SilenceTimeout:     time.Duration(h.cfg.SilenceTimeoutSec) * time.Second,
		},
		h.logger,
	)
	defer b.Close()

	go b.InitAISession()

	// AI read loop. A failed AI connection ends the session; there is no
	// reconnect, the caller hears silence.
	go func() {
		defer cancel()
		for {
			raw, err := aiConn.ReadMessage()
			if err != nil {
				h.logger.Info("Realtime AI connection closed", zap.Error(err))
				return
			}
			b.HandleAIMessage(ctx, raw)
		}
	}()

	h.runTelephonyLoop(ctx, conn, b)
}

// runTelephonyLoop reads telephony frames until the provider hangs up or the
// AI side cancels the session.
func (h *Handler) runTelephonyLoop(ctx context.Context, conn *websocket.Conn, b *bridge.Bridge) {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Error("Media stream read error", zap.Error(err))
				}
				return
			}
			if messageType == websocket.TextMessage {
				conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				b.HandleTelephonyMessage(ctx, message)
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Info("Media stream closed")
			return
		case <-ctx.Done():
			h.logger.Info("Session cancelled, closing media stream")
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				h.logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
