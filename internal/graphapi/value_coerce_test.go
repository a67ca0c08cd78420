package graphapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceValueSentinelRef(t *testing.T) {
	v, err := coerceValue(map[string]any{"$ref": "https://e2e.example/node/1"})
	require.NoError(t, err)
	ref, ok := v.AsRef()
	require.True(t, ok)
	assert.Equal(t, "https://e2e.example/node/1", string(ref))
}

func TestCoerceValueSentinelRefs(t *testing.T) {
	v, err := coerceValue(map[string]any{"$refs": []any{"https://e2e.example/a", "https://e2e.example/b"}})
	require.NoError(t, err)
	refs, ok := v.AsRefArray()
	require.True(t, ok)
	require.Len(t, refs, 2)
}

func TestCoerceValueSentinelGeoPoint(t *testing.T) {
	v, err := coerceValue(map[string]any{"$geo": map[string]any{"lat": 37.7749, "lng": -122.4194}})
	require.NoError(t, err)
	pt, ok := v.AsGeoPoint()
	require.True(t, ok)
	assert.InDelta(t, 37.7749, pt.Lat, 1e-9)
	assert.InDelta(t, -122.4194, pt.Lng, 1e-9)
}

func TestCoerceValueSentinelGeoPointOutOfRange(t *testing.T) {
	_, err := coerceValue(map[string]any{"$geo": map[string]any{"lat": 999.0, "lng": 0.0}})
	assert.Error(t, err)
}

func TestCoerceValueSentinelVector(t *testing.T) {
	v, err := coerceValue(map[string]any{"$vector": []any{1.0, 2.0, 3.0}})
	require.NoError(t, err)
	vec, ok := v.AsVector()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestCoerceValueUnrecognizedObjectFails(t *testing.T) {
	_, err := coerceValue(map[string]any{"plain": "object"})
	assert.Error(t, err)
}

func TestCoerceValueSentinelGeoLineString(t *testing.T) {
	v, err := coerceValue(map[string]any{"$geoLineString": []any{
		map[string]any{"lat": 0.0, "lng": 0.0},
		map[string]any{"lat": 1.0, "lng": 1.0},
	}})
	require.NoError(t, err)
	line, ok := v.AsGeoLineString()
	require.True(t, ok)
	assert.Len(t, line, 2)
}
