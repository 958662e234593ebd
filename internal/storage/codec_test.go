package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1, -1, 0.125, math.MaxFloat32, float32(math.Inf(-1))}
	buf := EncodeVector(vec)
	assert.Len(t, buf, len(vec)*4)

	got, err := DecodeVector(buf, len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestDecodeVector_Errors(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3, 4}, 0)
	assert.Error(t, err)

	_, err = DecodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
