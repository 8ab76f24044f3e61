package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLabels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLabels(t *testing.T) {
	path := writeLabels(t, `{
		"0": ["n01440764", "tench"],
		"1": ["n01443537", "goldfish"],
		"2": ["n01484850", "great_white_shark"]
	}`)

	table, err := LoadLabels(path, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, "tench", table.Name(0))
	assert.Equal(t, "great_white_shark", table.Name(2))
}

func TestLoadLabelsMissingIndex(t *testing.T) {
	path := writeLabels(t, `{"0": ["n01440764", "tench"], "2": ["n01484850", "shark"]}`)

	_, err := LoadLabels(path, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing class index 1")
}

func TestLoadLabelsTooNarrow(t *testing.T) {
	// Table covers fewer classes than the model emits: startup must fail,
	// not the first frame that hits the missing class.
	path := writeLabels(t, `{"0": ["n01440764", "tench"]}`)

	_, err := LoadLabels(path, 2)
	assert.Error(t, err)
}

func TestLoadLabelsMalformedEntry(t *testing.T) {
	path := writeLabels(t, `{"0": ["n01440764"]}`)

	_, err := LoadLabels(path, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed label entry")
}

func TestLoadLabelsNotJSON(t *testing.T) {
	path := writeLabels(t, "not json at all")

	_, err := LoadLabels(path, 1)
	assert.Error(t, err)
}

func TestLoadLabelsFileMissing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.json"), 1)
	assert.Error(t, err)
}
