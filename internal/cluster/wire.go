package cluster

import (
	"github.com/dreamware/tripledb/internal/chunkcodec"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/index/geo"
	"github.com/dreamware/tripledb/internal/index/position"
	"github.com/dreamware/tripledb/internal/index/vector"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// AppendRequest is the body of a shard's POST /rpc/append: one
// chunkcodec-framed triple.
type AppendRequest struct {
	Triple []byte `json:"triple"`
}

// AppendBatchRequest is the body of a shard's POST /rpc/append-batch: many
// chunkcodec-framed triples in one blob.
type AppendBatchRequest struct {
	Triples []byte `json:"triples"`
}

// RecordsResponse is the body of a shard's GET /rpc/records.
type RecordsResponse struct {
	Triples []byte `json:"triples"`
}

// PositionResponse is the body of a shard's GET /rpc/position. Entries use
// position.Entry directly since ident.EntityID/Predicate are plain defined
// string types that already marshal the way a remote caller expects.
type PositionResponse struct {
	Entries []position.Entry `json:"entries"`
}

// NearResponse is the body of a shard's GET /rpc/near.
type NearResponse struct {
	Hits []geo.Hit `json:"hits"`
}

// SearchResponse is the body of a shard's GET /rpc/search.
type SearchResponse struct {
	Hits []fts.Hit `json:"hits"`
}

// VectorSearchRequest is the body of a shard's POST /rpc/vector-search.
// The vector travels as a plain JSON number array rather than through
// chunkcodec, since it is not itself a triple object.
type VectorSearchRequest struct {
	Predicate string    `json:"predicate"`
	Vector    []float32 `json:"vector"`
	K         int       `json:"k"`
	Ef        int       `json:"ef"`
}

// VectorSearchResponse is the body of a shard's POST /rpc/vector-search.
type VectorSearchResponse struct {
	Results []vector.Result `json:"results"`
}

// wireTxID is a placeholder transaction id used only to satisfy
// triple.Triple's shape when a triple is carrying data across the wire
// rather than being appended to a shard. It is never persisted.
const wireTxID ident.TxID = "00000000000000000000000WIRE"

// EncodeTriples frames triples as a chunkcodec blob. The result marshals to
// a base64 JSON string via encoding/json's default []byte handling, so
// callers can embed it directly in a request/response struct field typed
// []byte.
func EncodeTriples(triples []triple.Triple) ([]byte, error) {
	blob, _, err := chunkcodec.Encode(triples)
	return blob, err
}

// DecodeTriples reverses EncodeTriples.
func DecodeTriples(blob []byte) ([]triple.Triple, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	_, triples, err := chunkcodec.Decode(blob)
	return triples, err
}

// EncodeValue frames a single typed object as a one-triple chunkcodec blob,
// reusing the chunk codec's variant handling instead of a parallel wire
// format for value.Value. subject/predicate are carried along only because
// chunkcodec encodes whole triples; DecodeValue discards them.
func EncodeValue(subject ident.EntityID, predicate ident.Predicate, v value.Value) ([]byte, error) {
	return EncodeTriples([]triple.Triple{triple.New(subject, predicate, v, 0, wireTxID)})
}

// DecodeValue reverses EncodeValue, returning just the carried object.
func DecodeValue(blob []byte) (value.Value, error) {
	triples, err := DecodeTriples(blob)
	if err != nil {
		return value.Value{}, err
	}
	if len(triples) == 0 {
		return value.Null(), nil
	}
	return triples[0].Object, nil
}
