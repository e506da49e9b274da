package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/session"
	"github.com/example/resy-watch/internal/watch"
	"github.com/google/uuid"
)

// inbound is a browser frame: {"type":"message","text":...},
// {"type":"watch", <watch request fields>} or {"type":"stop"}.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
	watch.Request
}

const teardownTimeout = 15 * time.Second

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	push := notify.NewPush(conn)
	defer push.Close()

	// the request context ends with the hijacked connection's handler
	ctx := context.WithoutCancel(r.Context())

	if s.ResyErr != nil {
		_ = push.Reply(ctx, "Error: "+s.ResyErr.Error())
		return
	}

	key := "ws:" + uuid.NewString()
	logger := s.Logger.With().Str("session", key).Logger()
	d := &session.Dispatcher{
		Processor:   s.NewProcessor(),
		Supervisor:  s.Supervisor,
		Session:     key,
		Reply:       push.Reply,
		Notifier:    push,
		StartedText: wsStartedText,
		Logger:      logger,
	}
	logger.Info().Msg("websocket connected")

	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		n, err := s.Supervisor.StopSession(tctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("watches did not stop in time")
		}
		logger.Info().Int("watches_stopped", n).Msg("websocket disconnected")
	}()

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		var err error
		switch in.Type {
		case "message":
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			if err = push.Typing(ctx); err != nil {
				return
			}
			if session.IsStopCommand(text) {
				err = d.Stop(ctx)
			} else {
				err = d.HandleText(ctx, text)
			}
		case "watch":
			err = d.StartWatch(ctx, in.Request)
		case "stop":
			err = d.Stop(ctx)
		}
		if err != nil {
			return
		}
	}
}
