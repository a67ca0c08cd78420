package chunkcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

func mustEntity(t *testing.T, raw string) ident.EntityID {
	t.Helper()
	id, err := ident.NewEntityID(raw)
	require.NoError(t, err)
	return id
}

func sampleTriples(t *testing.T) []triple.Triple {
	t.Helper()
	subj := mustEntity(t, "https://e2e/user/1")
	subj2 := mustEntity(t, "https://e2e/user/2")
	name, _ := ident.NewPredicate("name")
	friend, _ := ident.NewPredicate("friends")

	ref, err := value.Ref(subj2)
	require.NoError(t, err)

	return []triple.Triple{
		triple.New(subj, name, value.String("Alice"), 100, "01ARZ3NDEKTSV4RRFFQ69G5FA0"),
		triple.New(subj, friend, ref, 150, "01ARZ3NDEKTSV4RRFFQ69G5FA1"),
		triple.New(subj2, name, value.String("Bob"), 120, "01ARZ3NDEKTSV4RRFFQ69G5FA2"),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	triples := sampleTriples(t)

	data, hdr, err := Encode(triples)
	require.NoError(t, err)
	assert.EqualValues(t, len(triples), hdr.TripleCount)
	assert.Equal(t, int64(100), hdr.MinTS)
	assert.Equal(t, int64(150), hdr.MaxTS)

	gotHdr, gotTriples, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, triples, gotTriples, "decode must preserve insertion order")
}

func TestEncodeEmptyBatch(t *testing.T) {
	data, hdr, err := Encode(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, hdr.TripleCount)

	gotHdr, gotTriples, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, hdr, gotHdr)
	assert.Empty(t, gotTriples)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, _, err := Decode([]byte("not-a-chunk-blob-at-all"))
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	data, _, err := Encode(sampleTriples(t))
	require.NoError(t, err)

	_, _, err = Decode(data[:len(data)-5])
	assert.Error(t, err)
}
