package model

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// LabelTable is the immutable mapping from model output index to class name.
// Loaded once at startup and shared by reference across all sessions.
type LabelTable struct {
	names []string
}

// LoadLabels reads a class-index file in the ImageNet convention, a JSON
// object keyed by stringified index with [wordnet_id, class_name] values:
//
//	{"0": ["n01440764", "tench"], "1": ["n01443537", "goldfish"], ...}
//
// Every index in 0..width-1 must resolve; a gap means the deployment shipped
// the wrong vocabulary for the model, which is caught here rather than on the
// first frame that hits the missing class.
func LoadLabels(path string, width int) (*LabelTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading label table")
	}
	var entries map[string][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "parsing label table")
	}

	names := make([]string, width)
	for i := range names {
		entry, ok := entries[strconv.Itoa(i)]
		if !ok {
			return nil, errors.Errorf("label table missing class index %d (model emits %d classes)", i, width)
		}
		if len(entry) != 2 || entry[1] == "" {
			return nil, errors.Errorf("malformed label entry for index %d: %v", i, entry)
		}
		names[i] = entry[1]
	}
	return &LabelTable{names: names}, nil
}

// NewLabelTable builds a table from an in-memory vocabulary. Production code
// loads from disk via LoadLabels; this is for wiring fakes.
func NewLabelTable(names []string) *LabelTable {
	return &LabelTable{names: names}
}

// Name resolves a class index. Indices are validated against the model output
// width at load time, so any miss here is a programming error.
func (t *LabelTable) Name(index int) string {
	return t.names[index]
}

func (t *LabelTable) Len() int {
	return len(t.names)
}
