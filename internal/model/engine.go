package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/semaphore"
)

// Engine wraps a once-loaded ONNX classification model. After LoadEngine
// returns, the session is read-only: Classify allocates its own tensors, so
// independent connections may call it concurrently. A weighted semaphore caps
// how many runs execute at once process-wide; callers past the cap block.
type Engine struct {
	session *ort.DynamicAdvancedSession
	meta    Metadata
	slots   *semaphore.Weighted
}

// SetLibraryPath points the runtime at a non-default onnxruntime shared
// library. Must be called before LoadEngine.
func SetLibraryPath(path string) {
	ort.SetSharedLibraryPath(path)
}

// LoadEngine initializes the ONNX runtime, reads the model metadata and
// creates the inference session. Called exactly once at startup; any failure
// here means the process cannot serve. A warmup run on a zero tensor verifies
// the declared shapes actually match the model before the first client frame
// does.
func LoadEngine(modelPath, metadataPath string, concurrency int) (*Engine, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initializing ONNX environment")
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading model metadata")
	}
	var meta Metadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, errors.Wrap(err, "parsing model metadata")
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating ONNX session")
	}

	e := &Engine{
		session: session,
		meta:    meta,
		slots:   semaphore.NewWeighted(int64(concurrency)),
	}
	if _, err := e.Classify(context.Background(), make([]float32, meta.InputLen())); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "warmup inference")
	}
	return e, nil
}

// Metadata returns the loaded model's input/output contract.
func (e *Engine) Metadata() Metadata {
	return e.meta
}

// Classify runs one inference and returns the full class-probability
// distribution (softmax over the model's logits). The input must already be
// preprocessed to the metadata's shape and layout; a wrong length is a caller
// bug, not a model condition. ctx aborts waiting for a concurrency slot, not
// a run already dispatched to the runtime.
func (e *Engine) Classify(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != e.meta.InputLen() {
		return nil, errors.Errorf("input has %d elements, model expects %d", len(input), e.meta.InputLen())
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for inference slot")
	}
	defer e.slots.Release(1)

	in, err := ort.NewTensor(ort.NewShape(e.meta.InputShape...), input)
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(e.meta.OutputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "creating output tensor")
	}
	defer out.Destroy()

	if err := e.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	return softmax(out.GetData()), nil
}

// Close releases the session and the runtime environment. Only meaningful at
// process shutdown; the engine has no mid-process teardown.
func (e *Engine) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// softmax converts logits to a probability distribution. Max-subtraction
// keeps the exponentials finite for large logits.
func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxLogit))
		sum += exps[i]
	}
	probs := make([]float32, len(logits))
	for i, v := range exps {
		probs[i] = float32(v / sum)
	}
	return probs
}

// TopK returns the k highest-probability classes in descending score order.
// If k exceeds the distribution width the whole ranking is returned.
func TopK(probs []float32, k int) []ScoredClass {
	ranked := make([]ScoredClass, len(probs))
	for i, p := range probs {
		ranked[i] = ScoredClass{Index: i, Score: p}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
