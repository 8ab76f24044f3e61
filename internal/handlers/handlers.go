package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/wildsight/stream-classifier/internal/config"
	"github.com/wildsight/stream-classifier/internal/model"
	"github.com/wildsight/stream-classifier/internal/session"
)

// Handler owns the HTTP surface: the websocket upgrade endpoint and the
// readiness/liveness checks.
type Handler struct {
	engine   session.Classifier
	labels   *model.LabelTable
	cfg      *config.Config
	log      *zap.Logger
	upgrader websocket.Upgrader

	// baseCtx is cancelled on process shutdown; sessions inherit it so a
	// SIGTERM tears down open channels instead of leaking them past
	// http.Server.Shutdown, which ignores hijacked connections.
	baseCtx context.Context
}

func NewHandler(ctx context.Context, engine session.Classifier, labels *model.LabelTable, cfg *config.Config, log *zap.Logger) *Handler {
	h := &Handler{
		engine:  engine,
		labels:  labels,
		cfg:     cfg,
		log:     log,
		baseCtx: ctx,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	allowed := h.cfg.Origins()
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range allowed {
		if o == origin {
			return true
		}
	}
	h.log.Warn("rejected upgrade from unauthorized origin", zap.String("origin", origin))
	return false
}

// ServeWS upgrades the request and serves the session on this goroutine. A
// failed handshake never creates a session; the upgrader has already written
// the error response.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket handshake failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	log := h.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("session opened")
	defer log.Info("session ended")

	sess := session.New(conn, h.engine, h.labels, session.Options{
		MaxPayloadBytes: h.cfg.MaxPayloadBytes,
		TopK:            h.cfg.TopK,
		PingInterval:    h.cfg.PingInterval,
		PongTimeout:     h.cfg.PongTimeout,
		Threshold:       h.threshold(r),
	}, log)
	sess.Run(h.baseCtx)
}

// threshold resolves the per-session score cutoff, which the client may set
// with a "threshold" query parameter on the upgrade request.
func (h *Handler) threshold(r *http.Request) float64 {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return h.cfg.ScoreThreshold
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		h.log.Warn("ignoring invalid threshold parameter", zap.String("value", raw))
		return h.cfg.ScoreThreshold
	}
	return v
}

// Health builds the readiness/liveness checks. Readiness holds until the
// engine and the label table are loaded and agree on the class count; the
// listener only starts after load, so orchestration sees connection-refused
// and then healthy, never a healthy-unhealthy flap.
func Health(engine session.Classifier, labels *model.LabelTable) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddReadinessCheck("model", func() error {
		if engine == nil {
			return errNotLoaded
		}
		return nil
	})
	health.AddReadinessCheck("labels", func() error {
		if labels == nil || labels.Len() == 0 {
			return errNotLoaded
		}
		if engine != nil && labels.Len() != engine.Metadata().OutputWidth() {
			return errVocabularyMismatch
		}
		return nil
	})
	return health
}
