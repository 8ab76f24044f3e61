package model

import "github.com/pkg/errors"

// Metadata describes the fixed input/output contract of the model artifact.
// It is read from a JSON file that ships next to the .onnx file.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

func (m Metadata) validate() error {
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return errors.New("metadata missing input or output shape")
	}
	if m.ImageSize <= 0 {
		return errors.Errorf("metadata image_size must be positive, got %d", m.ImageSize)
	}
	for _, d := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return errors.Errorf("metadata shapes must be fully specified, got input=%v output=%v",
				m.InputShape, m.OutputShape)
		}
	}
	return nil
}

// InputLen is the flattened element count Classify expects.
func (m Metadata) InputLen() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}

// OutputWidth is the number of classes the model scores.
func (m Metadata) OutputWidth() int {
	return int(m.OutputShape[len(m.OutputShape)-1])
}

// ChannelsFirst reports whether the input layout is NCHW rather than NHWC.
func (m Metadata) ChannelsFirst() bool {
	return len(m.InputShape) == 4 && m.InputShape[1] == 3
}

// ScoredClass is one ranked model output: a class index with its probability.
type ScoredClass struct {
	Index int
	Score float32
}
