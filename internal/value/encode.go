package value

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// Encode serializes v to its self-describing wire form: a one-byte Kind tag
// followed by the variant's payload. Integers are little-endian; strings
// are length-prefixed UTF-8 (uint32 LE length); vectors are length-prefixed
// IEEE-754 float32; geo payloads are fixed-width float64 per coordinate.
// decode(encode(v)) == v for every valid v (spec §4.1, §8 invariant 1).
func Encode(v Value) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(v.Kind))

	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt32:
		writeInt64(&buf, v.i64, 4)
	case KindInt64, KindTimestamp:
		writeInt64(&buf, v.i64, 8)
	case KindFloat64:
		writeUint64(&buf, math.Float64bits(v.f64))
	case KindString, KindDate, KindDuration, KindRef, KindJSON, KindURL:
		writeString(&buf, v.str)
	case KindBinary:
		writeBytes(&buf, v.bin)
	case KindRefArray:
		writeUint32(&buf, uint32(len(v.refs)))
		for _, r := range v.refs {
			writeString(&buf, string(r))
		}
	case KindGeoPoint:
		writePoint(&buf, v.pt)
	case KindGeoPolygon:
		writeRing(&buf, v.poly.Exterior)
		writeUint32(&buf, uint32(len(v.poly.Holes)))
		for _, h := range v.poly.Holes {
			writeRing(&buf, h)
		}
	case KindGeoLineString:
		writeRing(&buf, v.line)
	case KindVector:
		writeUint32(&buf, uint32(len(v.vec)))
		for _, c := range v.vec {
			writeUint32(&buf, math.Float32bits(c))
		}
	}

	return buf.Bytes()
}

// Decode parses the wire form produced by Encode back into a Value.
func Decode(data []byte) (Value, error) {
	if len(data) < 1 {
		return Value{}, errs.New(errs.InvalidValue, "empty buffer has no kind tag")
	}
	r := bytes.NewReader(data[1:])
	kind := Kind(data[0])

	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		var b byte
		if err := readByte(r, &b); err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt32:
		n, err := readInt64(r, 4)
		if err != nil {
			return Value{}, err
		}
		return Int32(int32(n)), nil
	case KindInt64:
		n, err := readInt64(r, 8)
		if err != nil {
			return Value{}, err
		}
		return Int64(n), nil
	case KindTimestamp:
		n, err := readInt64(r, 8)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTimestamp, i64: n}, nil
	case KindFloat64:
		bits, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat64, f64: math.Float64frombits(bits)}, nil
	case KindString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindDate:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindDate, str: s}, nil
	case KindDuration:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindDuration, str: s}, nil
	case KindRef:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindRef, str: s}, nil
	case KindJSON:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindJSON, str: s}, nil
	case KindURL:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindURL, str: s}, nil
	case KindBinary:
		b, err := readBytes(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBinary, bin: b}, nil
	case KindRefArray:
		count, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		refs := make([]ident.EntityID, count)
		for i := range refs {
			s, err := readString(r)
			if err != nil {
				return Value{}, err
			}
			refs[i] = ident.EntityID(s)
		}
		return Value{Kind: KindRefArray, refs: refs}, nil
	case KindGeoPoint:
		pt, err := readPoint(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindGeoPoint, pt: pt}, nil
	case KindGeoPolygon:
		ext, err := readRing(r)
		if err != nil {
			return Value{}, err
		}
		holeCount, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		holes := make([][]GeoPoint, holeCount)
		for i := range holes {
			h, err := readRing(r)
			if err != nil {
				return Value{}, err
			}
			holes[i] = h
		}
		return Value{Kind: KindGeoPolygon, poly: &GeoPolygon{Exterior: ext, Holes: holes}}, nil
	case KindGeoLineString:
		line, err := readRing(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindGeoLineString, line: line}, nil
	case KindVector:
		count, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		vec := make([]float32, count)
		for i := range vec {
			bits, err := readUint32(r)
			if err != nil {
				return Value{}, err
			}
			vec[i] = math.Float32frombits(bits)
		}
		return Value{Kind: KindVector, vec: vec}, nil
	default:
		return Value{}, errs.New(errs.InvalidValue, "unknown kind tag %d", kind)
	}
}

func writeInt64(buf *bytes.Buffer, n int64, width int) {
	b := make([]byte, width)
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(int32(n)))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(n))
	}
	buf.Write(b)
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	buf.Write(b)
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, n)
	buf.Write(b)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writePoint(buf *bytes.Buffer, p GeoPoint) {
	writeUint64(buf, math.Float64bits(p.Lat))
	writeUint64(buf, math.Float64bits(p.Lng))
}

func writeRing(buf *bytes.Buffer, ring []GeoPoint) {
	writeUint32(buf, uint32(len(ring)))
	for _, p := range ring {
		writePoint(buf, p)
	}
}

func readByte(r *bytes.Reader, out *byte) error {
	b, err := r.ReadByte()
	if err != nil {
		return errs.New(errs.InvalidValue, "truncated buffer: %v", err)
	}
	*out = b
	return nil
}

func readInt64(r *bytes.Reader, width int) (int64, error) {
	b := make([]byte, width)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	switch width {
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("unsupported width %d", width)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	b := make([]byte, 8)
	if _, err := readFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPoint(r *bytes.Reader) (GeoPoint, error) {
	lat, err := readUint64(r)
	if err != nil {
		return GeoPoint{}, err
	}
	lng, err := readUint64(r)
	if err != nil {
		return GeoPoint{}, err
	}
	return GeoPoint{Lat: math.Float64frombits(lat), Lng: math.Float64frombits(lng)}, nil
}

func readRing(r *bytes.Reader) ([]GeoPoint, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	ring := make([]GeoPoint, count)
	for i := range ring {
		p, err := readPoint(r)
		if err != nil {
			return nil, err
		}
		ring[i] = p
	}
	return ring, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, errs.New(errs.InvalidValue, "truncated buffer: expected %d bytes", len(b))
	}
	return n, nil
}
