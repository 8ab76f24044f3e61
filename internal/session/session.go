// Package session implements the serving loop for one client's websocket
// channel: read a frame, preprocess it, run inference, answer with a ranked
// prediction or a per-frame error, repeat until the channel closes.
package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wildsight/stream-classifier/internal/metrics"
	"github.com/wildsight/stream-classifier/internal/model"
	"github.com/wildsight/stream-classifier/internal/preprocess"
)

// writeWait bounds a single outbound write or control frame.
const writeWait = 10 * time.Second

// Classifier is the slice of the inference engine a session needs. Concrete
// implementation is model.Engine; tests substitute a fake.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]float32, error)
	Metadata() model.Metadata
}

// Options carries the per-session tunables resolved at upgrade time.
type Options struct {
	MaxPayloadBytes int64
	TopK            int
	PingInterval    time.Duration
	PongTimeout     time.Duration
	// Threshold drops predictions scoring below it from the response.
	Threshold float64
}

// Session exclusively owns one accepted connection for its lifetime. No state
// is shared between sessions; the engine and label table are shared read-only.
type Session struct {
	conn     *websocket.Conn
	engine   Classifier
	labels   *model.LabelTable
	opts     Options
	log      *zap.Logger
	lastSeen time.Time
}

func New(conn *websocket.Conn, engine Classifier, labels *model.LabelTable, opts Options, log *zap.Logger) *Session {
	return &Session{
		conn:   conn,
		engine: engine,
		labels: labels,
		opts:   opts,
		log:    log,
	}
}

// Run serves the channel until the peer disconnects, liveness lapses or ctx
// is cancelled. Processing is strictly sequential: the next frame is not read
// until the current frame's response has been written, so there is never more
// than one in-flight tensor per session and responses cannot reorder. The
// connection is closed on every exit path.
func (s *Session) Run(ctx context.Context) {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	defer s.conn.Close()

	// Backstop only; the configured limit is enforced per-frame below so an
	// oversized payload stays a recoverable error instead of killing the
	// connection.
	s.conn.SetReadLimit(4 * s.opts.MaxPayloadBytes)

	s.lastSeen = time.Now()
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.lastSeen = time.Now()
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, done)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("session closed", zap.Error(err), zap.Time("last_activity", s.lastSeen))
			}
			return
		}
		s.lastSeen = time.Now()

		resp, result := s.handleFrame(ctx, msgType, data)
		metrics.FramesTotal.WithLabelValues(result).Inc()

		// Exactly one response per accepted frame. A failed write means the
		// peer is gone; the session ends.
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(resp); err != nil {
			s.log.Info("response write failed, closing session", zap.Error(err))
			return
		}
	}
}

// handleFrame runs one frame through the pipeline. Every failure mode maps to
// an error envelope sent back on the channel; nothing here ends the session.
func (s *Session) handleFrame(ctx context.Context, msgType int, data []byte) (interface{}, string) {
	if msgType != websocket.BinaryMessage {
		return errorResponse(KindUnsupportedMessage, "expected a binary image payload"), KindUnsupportedMessage
	}
	if int64(len(data)) > s.opts.MaxPayloadBytes {
		s.log.Warn("payload over limit", zap.Int("size", len(data)), zap.Int64("limit", s.opts.MaxPayloadBytes))
		return errorResponse(KindPayloadTooLarge, "image payload exceeds the configured maximum"), KindPayloadTooLarge
	}

	tensor, err := preprocess.ToTensor(data, s.engine.Metadata())
	if err != nil {
		s.log.Debug("frame rejected", zap.Error(err))
		return errorResponse(KindDecodeError, "could not decode image payload"), KindDecodeError
	}

	timer := prometheus.NewTimer(metrics.InferenceDuration)
	probs, err := s.engine.Classify(ctx, tensor)
	timer.ObserveDuration()
	if err != nil {
		s.log.Error("inference failed", zap.Error(err))
		return errorResponse(KindInferenceError, "classification failed for this frame"), KindInferenceError
	}

	ranked := model.TopK(probs, s.opts.TopK)
	preds := make([]Prediction, 0, len(ranked))
	for _, sc := range ranked {
		if float64(sc.Score) < s.opts.Threshold {
			continue
		}
		preds = append(preds, Prediction{
			Label: s.labels.Name(sc.Index),
			Score: sc.Score,
		})
	}
	return Result{
		Predictions:         preds,
		TotalPredictions:    len(ranked),
		FilteredPredictions: len(preds),
	}, "ok"
}

// keepAlive pings the peer on a fixed interval so half-open connections are
// detected even with no frame traffic: a peer that stops answering lets the
// read deadline lapse, which fails the blocked ReadMessage in Run. It also
// initiates close on server shutdown, unblocking the read promptly.
func (s *Session) keepAlive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				return
			}
		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			s.conn.Close()
			return
		case <-done:
			return
		}
	}
}
