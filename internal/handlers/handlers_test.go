package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wildsight/stream-classifier/internal/config"
	"github.com/wildsight/stream-classifier/internal/model"
	"github.com/wildsight/stream-classifier/internal/session"
)

type stubEngine struct {
	probs []float32
}

func (s *stubEngine) Classify(context.Context, []float32) ([]float32, error) {
	return s.probs, nil
}

func (s *stubEngine) Metadata() model.Metadata {
	return model.Metadata{
		InputShape:  []int64{1, 3, 8, 8},
		OutputShape: []int64{1, 4},
		ImageSize:   8,
	}
}

var stubLabels = model.NewLabelTable([]string{"marmot", "fox_squirrel", "beaver", "porcupine"})

func testConfig() *config.Config {
	return &config.Config{
		MaxPayloadBytes: 1 << 20,
		TopK:            3,
		PingInterval:    time.Minute,
		PongTimeout:     time.Minute,
	}
}

func startHandler(t *testing.T, cfg *config.Config) string {
	t.Helper()
	engine := &stubEngine{probs: []float32{0.6, 0.25, 0.1, 0.05}}
	h := NewHandler(context.Background(), engine, stubLabels, cfg, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func framePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUpgradeAndClassify(t *testing.T) {
	url := startHandler(t, testConfig())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, framePNG(t)))

	var resp session.Result
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&resp))
	require.Len(t, resp.Predictions, 3)
	assert.Equal(t, "marmot", resp.Predictions[0].Label)
}

func TestThresholdQueryParameter(t *testing.T) {
	url := startHandler(t, testConfig())
	conn, _, err := websocket.DefaultDialer.Dial(url+"?threshold=0.2", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, framePNG(t)))

	var resp session.Result
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&resp))
	// 0.6 and 0.25 clear a 0.2 cutoff, 0.1 does not.
	assert.Equal(t, 3, resp.TotalPredictions)
	assert.Equal(t, 2, resp.FilteredPredictions)
}

func TestOriginAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = "https://app.example.com"
	url := startHandler(t, cfg)

	// Unlisted origin is rejected at the handshake; no session is created.
	header := http.Header{"Origin": []string{"https://evil.example.net"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestReadinessChecks(t *testing.T) {
	engine := &stubEngine{}

	t.Run("healthy after load", func(t *testing.T) {
		health := Health(engine, stubLabels)
		rec := httptest.NewRecorder()
		health.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy without engine", func(t *testing.T) {
		health := Health(nil, stubLabels)
		rec := httptest.NewRecorder()
		health.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unhealthy on vocabulary mismatch", func(t *testing.T) {
		health := Health(engine, model.NewLabelTable([]string{"only_one"}))
		rec := httptest.NewRecorder()
		health.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
