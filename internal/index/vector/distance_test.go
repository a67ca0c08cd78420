package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineIdenticalVectorsZeroDistance(t *testing.T) {
	d, err := cosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-5)
}

func TestCosineOppositeVectorsMaxDistance(t *testing.T) {
	d, err := cosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-5)
}

func TestCosineZeroVectorReturnsMax(t *testing.T) {
	d, err := cosineDistance([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(2), d)
}

func TestCosineRejectsDimensionMismatch(t *testing.T) {
	_, err := cosineDistance([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestEuclideanKnownDistance(t *testing.T) {
	d, err := euclideanDistance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-5)
}

func TestEuclideanRejectsDimensionMismatch(t *testing.T) {
	_, err := euclideanDistance([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestInnerProductAgreesWithCosineForUnitVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	cos, err := cosineDistance(a, b)
	require.NoError(t, err)
	ip, err := innerProductDistance(a, b)
	require.NoError(t, err)
	// cos distance = 1 - cos_sim; ip distance = -dot. For unit vectors,
	// cos_sim == dot, so cos distance - 1 == ip distance.
	assert.InDelta(t, cos-1, ip, 1e-5)
}

func TestInnerProductRejectsDimensionMismatch(t *testing.T) {
	_, err := innerProductDistance([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}
