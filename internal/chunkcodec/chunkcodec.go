// Package chunkcodec implements the columnar binary encoding used to
// materialize a batch of triples into one immutable chunk blob (spec
// §3 "Chunk", §4.4). The layout is a small header followed by five
// length-prefixed columns — subject, predicate, object, timestamp, txId —
// so a reader that only needs, say, timestamps for pruning never has to
// touch the object column's variant-tagged payloads. Subject and predicate
// columns are dictionary-encoded since both repeat heavily within a chunk.
package chunkcodec

import (
	"bytes"
	"encoding/binary"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// magic identifies a chunk blob; version allows the layout to evolve
// without breaking existing chunks (an unrecognized version is a read
// error, not a silent misparse).
const (
	magic          = "TCK1"
	currentVersion = uint16(1)
	txIDLength     = 26
)

// Header carries the chunk-level metadata spec §3 requires: triple_count
// and the [min_ts, max_ts] range used for chunk pruning (spec §4.5).
type Header struct {
	TripleCount uint32
	MinTS       int64
	MaxTS       int64
}

// Encode serializes triples (in the order given — callers that want
// timestamp order should sort first) into one chunk blob. Subjects and
// predicates are dictionary-encoded: each distinct string is stored once
// and every row carries an index into the dictionary, which shrinks those
// columns when values repeat and adds the index bytes when they do not.
func Encode(triples []triple.Triple) ([]byte, Header, error) {
	hdr := Header{TripleCount: uint32(len(triples))}
	if len(triples) > 0 {
		hdr.MinTS = triples[0].Timestamp
		hdr.MaxTS = triples[0].Timestamp
		for _, t := range triples {
			if t.Timestamp < hdr.MinTS {
				hdr.MinTS = t.Timestamp
			}
			if t.Timestamp > hdr.MaxTS {
				hdr.MaxTS = t.Timestamp
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	writeUint16(&buf, currentVersion)
	writeUint32(&buf, hdr.TripleCount)
	writeInt64(&buf, hdr.MinTS)
	writeInt64(&buf, hdr.MaxTS)

	subjects := make([]string, len(triples))
	predicates := make([]string, len(triples))
	for i, t := range triples {
		subjects[i] = string(t.Subject)
		predicates[i] = string(t.Predicate)
	}

	writeColumn(&buf, encodeDictColumn(subjects))
	writeColumn(&buf, encodeDictColumn(predicates))
	writeColumn(&buf, encodeObjectColumn(triples))
	writeColumn(&buf, encodeTimestampColumn(triples))
	writeColumn(&buf, encodeTxIDColumn(triples))

	return buf.Bytes(), hdr, nil
}

// Decode parses a chunk blob back into its header and triples, in the same
// order Encode received them (spec §4.4: "decode produces triples in
// insertion order").
func Decode(data []byte) (Header, []triple.Triple, error) {
	r := bytes.NewReader(data)

	gotMagic := make([]byte, len(magic))
	if _, err := readFull(r, gotMagic); err != nil || string(gotMagic) != magic {
		return Header{}, nil, errs.New(errs.Internal, "chunk has bad magic (corrupted chunk)")
	}
	version, err := readUint16(r)
	if err != nil {
		return Header{}, nil, err
	}
	if version != currentVersion {
		return Header{}, nil, errs.New(errs.Internal, "unsupported chunk version %d", version)
	}

	var hdr Header
	count, err := readUint32(r)
	if err != nil {
		return Header{}, nil, err
	}
	hdr.TripleCount = count
	if hdr.MinTS, err = readInt64(r); err != nil {
		return Header{}, nil, err
	}
	if hdr.MaxTS, err = readInt64(r); err != nil {
		return Header{}, nil, err
	}

	subjectCol, err := readColumn(r)
	if err != nil {
		return Header{}, nil, err
	}
	predicateCol, err := readColumn(r)
	if err != nil {
		return Header{}, nil, err
	}
	objectCol, err := readColumn(r)
	if err != nil {
		return Header{}, nil, err
	}
	tsCol, err := readColumn(r)
	if err != nil {
		return Header{}, nil, err
	}
	txCol, err := readColumn(r)
	if err != nil {
		return Header{}, nil, err
	}

	subjects, err := decodeDictColumn(subjectCol, int(count))
	if err != nil {
		return Header{}, nil, err
	}
	predicates, err := decodeDictColumn(predicateCol, int(count))
	if err != nil {
		return Header{}, nil, err
	}
	objects, err := decodeObjectColumn(objectCol, int(count))
	if err != nil {
		return Header{}, nil, err
	}
	timestamps, err := decodeTimestampColumn(tsCol, int(count))
	if err != nil {
		return Header{}, nil, err
	}
	txIDs, err := decodeTxIDColumn(txCol, int(count))
	if err != nil {
		return Header{}, nil, err
	}

	triples := make([]triple.Triple, count)
	for i := range triples {
		triples[i] = triple.Triple{
			Subject:   ident.EntityID(subjects[i]),
			Predicate: ident.Predicate(predicates[i]),
			Object:    objects[i],
			Timestamp: timestamps[i],
			TxID:      ident.TxID(txIDs[i]),
		}
	}
	return hdr, triples, nil
}

func encodeDictColumn(values []string) []byte {
	dict := make([]string, 0, len(values))
	index := make(map[string]uint32, len(values))
	codes := make([]uint32, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			code = uint32(len(dict))
			index[v] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}

	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(dict)))
	for _, s := range dict {
		writeLPString(&buf, s)
	}
	for _, c := range codes {
		writeUint32(&buf, c)
	}
	return buf.Bytes()
}

func decodeDictColumn(data []byte, count int) ([]string, error) {
	r := bytes.NewReader(data)
	dictLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	dict := make([]string, dictLen)
	for i := range dict {
		s, err := readLPString(r)
		if err != nil {
			return nil, err
		}
		dict[i] = s
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		code, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		if int(code) >= len(dict) {
			return nil, errs.New(errs.Internal, "dictionary code %d out of range (corrupted chunk)", code)
		}
		out[i] = dict[code]
	}
	return out, nil
}

func encodeObjectColumn(triples []triple.Triple) []byte {
	var buf bytes.Buffer
	for _, t := range triples {
		enc := value.Encode(t.Object)
		writeUint32(&buf, uint32(len(enc)))
		buf.Write(enc)
	}
	return buf.Bytes()
}

func decodeObjectColumn(data []byte, count int) ([]value.Value, error) {
	r := bytes.NewReader(data)
	out := make([]value.Value, count)
	for i := 0; i < count; i++ {
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := readFull(r, raw); err != nil {
			return nil, err
		}
		v, err := value.Decode(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func encodeTimestampColumn(triples []triple.Triple) []byte {
	buf := make([]byte, 8*len(triples))
	for i, t := range triples {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(t.Timestamp))
	}
	return buf
}

func decodeTimestampColumn(data []byte, count int) ([]int64, error) {
	if len(data) != count*8 {
		return nil, errs.New(errs.Internal, "timestamp column size mismatch (corrupted chunk)")
	}
	out := make([]int64, count)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}

func encodeTxIDColumn(triples []triple.Triple) []byte {
	buf := make([]byte, txIDLength*len(triples))
	for i, t := range triples {
		copy(buf[i*txIDLength:], []byte(padTxID(string(t.TxID))))
	}
	return buf
}

func decodeTxIDColumn(data []byte, count int) ([]string, error) {
	if len(data) != count*txIDLength {
		return nil, errs.New(errs.Internal, "txId column size mismatch (corrupted chunk)")
	}
	out := make([]string, count)
	for i := range out {
		out[i] = string(data[i*txIDLength : (i+1)*txIDLength])
	}
	return out, nil
}

func padTxID(s string) string {
	if len(s) >= txIDLength {
		return s[:txIDLength]
	}
	return s + string(make([]byte, txIDLength-len(s)))
}

func writeColumn(buf *bytes.Buffer, col []byte) {
	writeUint32(buf, uint32(len(col)))
	buf.Write(col)
}

func readColumn(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := readFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeUint16(buf *bytes.Buffer, n uint16) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, n)
	buf.Write(b)
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	buf.Write(b)
}

func writeInt64(buf *bytes.Buffer, n int64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(n))
	buf.Write(b)
}

func writeLPString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint16(r *bytes.Reader) (uint16, error) {
	b := make([]byte, 2)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	b := make([]byte, 8)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func readLPString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if (err != nil && len(b) > 0) || n != len(b) {
		return n, errs.New(errs.Internal, "truncated chunk: expected %d bytes (corrupted chunk)", len(b))
	}
	return n, nil
}
