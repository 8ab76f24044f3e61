package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is the process configuration, populated from CLASSIFIER_* environment
// variables. Everything has a default except the model artifact paths.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	ModelPath    string `envconfig:"MODEL_PATH" default:"models/mobilenetv2.onnx"`
	MetadataPath string `envconfig:"METADATA_PATH" default:"models/model_metadata.json"`
	LabelsPath   string `envconfig:"LABELS_PATH" default:"models/imagenet_class_index.json"`

	// OrtLibraryPath overrides the onnxruntime shared library location when it
	// is not on the default search path.
	OrtLibraryPath string `envconfig:"ORT_LIBRARY_PATH" default:""`

	MaxPayloadBytes int64 `envconfig:"MAX_PAYLOAD_BYTES" default:"5242880"`
	TopK            int   `envconfig:"TOP_K" default:"5"`

	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"20s"`
	PongTimeout  time.Duration `envconfig:"PONG_TIMEOUT" default:"20s"`

	// InferConcurrency caps concurrent model runs process-wide. Zero means one
	// slot per CPU.
	InferConcurrency int `envconfig:"INFER_CONCURRENCY" default:"0"`

	// ScoreThreshold drops predictions below it from responses. Sessions may
	// override it with a "threshold" query parameter on the upgrade request.
	ScoreThreshold float64 `envconfig:"SCORE_THRESHOLD" default:"0"`

	// AllowedOrigins is a comma-separated list restricting websocket upgrades.
	// Empty allows any origin.
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:""`
}

// Origins returns the origin allow-list with empty entries removed.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("CLASSIFIER", &cfg); err != nil {
		return nil, errors.Wrap(err, "processing environment")
	}
	if cfg.MaxPayloadBytes <= 0 {
		return nil, errors.Errorf("max payload must be positive, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.TopK <= 0 {
		return nil, errors.Errorf("top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.PingInterval <= 0 || cfg.PongTimeout <= 0 {
		return nil, errors.New("ping interval and pong timeout must be positive")
	}
	if cfg.InferConcurrency == 0 {
		cfg.InferConcurrency = runtime.NumCPU()
	}
	if cfg.InferConcurrency < 0 {
		return nil, errors.Errorf("inference concurrency must not be negative, got %d", cfg.InferConcurrency)
	}
	return &cfg, nil
}
