package handlers

import "github.com/pkg/errors"

var (
	errNotLoaded          = errors.New("model not loaded")
	errVocabularyMismatch = errors.New("label table size does not match model output width")
)
