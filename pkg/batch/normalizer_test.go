package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePadsMissingKeys(t *testing.T) {
	rows := []Row{
		{"a": 1, "b": 2},
		{"a": 3},
	}

	out := Normalize(rows)
	require.Len(t, out, 2)
	assert.Equal(t, Row{"a": 1, "b": 2}, out[0])
	assert.Equal(t, Row{"a": 3, "b": nil}, out[1])

	v, ok := out[1]["b"]
	require.True(t, ok, "missing key must be present as explicit null")
	assert.Nil(t, v)
}

func TestNormalizeEmpty(t *testing.T) {
	out := Normalize(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestNormalizeEmptyKeyUnion(t *testing.T) {
	out := Normalize([]Row{{}, {}})
	require.NotNil(t, out)
	assert.Empty(t, out, "rows with no keys at all are not a writable batch")
}

func TestNormalizeUniformKeys(t *testing.T) {
	rows := []Row{
		{"a": 1, "b": "x"},
		{"a": 2, "b": "y"},
	}
	out := Normalize(rows)
	assert.Equal(t, rows, out)
	assert.Equal(t, []string{"a", "b"}, Keys(out))
}

func TestDedupeLastWins(t *testing.T) {
	rows := []Row{
		{"source": "acme", "external_id": "1", "title": "old"},
		{"source": "acme", "external_id": "2", "title": "keep"},
		{"source": "acme", "external_id": "1", "title": "new"},
	}

	out := Dedupe(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0]["title"])
	assert.Equal(t, "keep", out[1]["title"])
}

func TestDedupeDistinctSources(t *testing.T) {
	rows := []Row{
		{"source": "acme", "external_id": "1"},
		{"source": "other", "external_id": "1"},
	}
	assert.Len(t, Dedupe(rows), 2)
}

func TestChunk(t *testing.T) {
	rows := make([]Row, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, Row{"i": i})
	}

	chunks := Chunk(rows, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 1)

	assert.Nil(t, Chunk(nil, 2))
	assert.Nil(t, Chunk(rows, 0))
}
