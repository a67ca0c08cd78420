package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

func TestEncodeDecodeTriplesRoundTrips(t *testing.T) {
	subj, err := ident.NewEntityID("https://ex.test/widgets/1")
	require.NoError(t, err)
	pred, err := ident.NewPredicate("name")
	require.NoError(t, err)
	tx, err := ident.NewTxID("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)

	triples := []triple.Triple{triple.New(subj, pred, value.String("widget-1"), 100, tx)}

	blob, err := EncodeTriples(triples)
	require.NoError(t, err)

	decoded, err := DecodeTriples(blob)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, subj, decoded[0].Subject)
	assert.Equal(t, pred, decoded[0].Predicate)
	s, ok := decoded[0].Object.AsString()
	require.True(t, ok)
	assert.Equal(t, "widget-1", s)
}

func TestDecodeTriplesEmptyBlob(t *testing.T) {
	decoded, err := DecodeTriples(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestEncodeDecodeValueRoundTrips(t *testing.T) {
	subj, err := ident.NewEntityID("https://ex.test/widgets/1")
	require.NoError(t, err)
	pred, err := ident.NewPredicate("owner")
	require.NoError(t, err)
	ref, err := ident.NewEntityID("https://ex.test/people/1")
	require.NoError(t, err)
	v, err := value.Ref(ref)
	require.NoError(t, err)

	blob, err := EncodeValue(subj, pred, v)
	require.NoError(t, err)

	decoded, err := DecodeValue(blob)
	require.NoError(t, err)
	gotRef, ok := decoded.AsRef()
	require.True(t, ok)
	assert.Equal(t, ref, gotRef)
}

func TestDecodeValueEmptyBlobIsNull(t *testing.T) {
	v, err := DecodeValue(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}
