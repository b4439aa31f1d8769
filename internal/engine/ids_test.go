package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	a := gen.Generate()
	b := gen.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	gen := UUIDv7Generator{}
	prev := gen.Generate()
	for range 100 {
		next := gen.Generate()
		assert.Less(t, prev, next, "UUIDv7 ids should sort by creation")
		prev = next
	}
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("ctx-1", "ctx-2")

	assert.Equal(t, "ctx-1", gen.Generate())
	assert.Equal(t, "ctx-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
