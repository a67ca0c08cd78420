// Package value implements the typed object model: an 18-variant tagged
// union with validating constructors, typed accessors, and a self-describing
// binary encoding. Variants are never represented as a Go interface
// hierarchy — per spec §9's design notes — so a Value is a single struct
// with a Kind tag and one populated payload field at a time.
package value

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// Kind tags which variant a Value holds.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindBinary
	KindTimestamp
	KindDate
	KindDuration
	KindRef
	KindRefArray
	KindJSON
	KindGeoPoint
	KindGeoPolygon
	KindGeoLineString
	KindURL
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindInt32:
		return "INT32"
	case KindInt64:
		return "INT64"
	case KindFloat64:
		return "FLOAT64"
	case KindString:
		return "STRING"
	case KindBinary:
		return "BINARY"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindDate:
		return "DATE"
	case KindDuration:
		return "DURATION"
	case KindRef:
		return "REF"
	case KindRefArray:
		return "REF_ARRAY"
	case KindJSON:
		return "JSON"
	case KindGeoPoint:
		return "GEO_POINT"
	case KindGeoPolygon:
		return "GEO_POLYGON"
	case KindGeoLineString:
		return "GEO_LINESTRING"
	case KindURL:
		return "URL"
	case KindVector:
		return "VECTOR"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// GeoPoint is a WGS-84 lat/lng pair. lat in [-90,90], lng in [-180,180].
type GeoPoint struct {
	Lat float64
	Lng float64
}

// GeoPolygon is an exterior ring plus optional interior holes. Rings are
// closed: first point equals last.
type GeoPolygon struct {
	Exterior []GeoPoint
	Holes    [][]GeoPoint
}

// Value is the tagged union. Exactly one of the typed fields below is
// meaningful, selected by Kind; callers use the As* accessors rather than
// touching fields directly so the representation can change without
// breaking callers.
type Value struct {
	str   string
	bin   []byte
	refs  []ident.EntityID
	poly  *GeoPolygon
	line  []GeoPoint
	vec   []float32
	i64   int64
	f64   float64
	pt    GeoPoint
	Kind  Kind
	b     bool
}

// Null returns the NULL value. A triple whose object is Null is a
// tombstone (spec §3).
func Null() Value { return Value{Kind: KindNull} }

// Bool constructs a BOOL value.
func Bool(b bool) Value { return Value{Kind: KindBool, b: b} }

// Int32 constructs an INT32 value, validating that n fits signed 32 bits is
// the caller's job when n originates from an int64 — this constructor takes
// an int32 directly so it cannot fail.
func Int32(n int32) Value { return Value{Kind: KindInt32, i64: int64(n)} }

// Int32FromInt64 validates that n fits in signed 32 bits and constructs an
// INT32 value.
func Int32FromInt64(n int64) (Value, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return Value{}, invalid(KindInt32, "value %d does not fit in signed 32 bits", n)
	}
	return Value{Kind: KindInt32, i64: n}, nil
}

// Int64 constructs an INT64 value.
func Int64(n int64) Value { return Value{Kind: KindInt64, i64: n} }

// Float64 validates f is not NaN and constructs a FLOAT64 value. Infinity
// is permitted (spec §3 documents it as allowed "where documented"; this
// engine allows it uniformly and leaves rejection to predicate-level schema
// policy, which is out of scope here).
func Float64(f float64) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, invalid(KindFloat64, "NaN is not a valid FLOAT64")
	}
	return Value{Kind: KindFloat64, f64: f}, nil
}

// String constructs a STRING value.
func String(s string) Value { return Value{Kind: KindString, str: s} }

// Binary constructs a BINARY value, copying b so later mutation by the
// caller cannot corrupt the Value.
func Binary(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindBinary, bin: cp}
}

// Timestamp validates ms is non-negative and constructs a TIMESTAMP value.
// ms is milliseconds since the Unix epoch, held as int64 throughout so
// arithmetic never loses precision past 2^53 the way a float64 would
// (spec §3).
func Timestamp(ms int64) (Value, error) {
	if ms < 0 {
		return Value{}, invalid(KindTimestamp, "timestamp must be non-negative, got %d", ms)
	}
	return Value{Kind: KindTimestamp, i64: ms}, nil
}

// Date validates s is a YYYY-MM-DD calendar date and constructs a DATE
// value, stored as the string form.
func Date(s string) (Value, error) {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return Value{}, invalid(KindDate, "invalid date %q: %v", s, err)
	}
	return Value{Kind: KindDate, str: s}, nil
}

// Duration validates s is an ISO-8601 duration string and constructs a
// DURATION value.
func Duration(s string) (Value, error) {
	if !isISO8601Duration(s) {
		return Value{}, invalid(KindDuration, "invalid ISO-8601 duration %q", s)
	}
	return Value{Kind: KindDuration, str: s}, nil
}

// Ref validates id and constructs a REF value.
func Ref(id ident.EntityID) (Value, error) {
	if !ident.ValidateEntityID(string(id)) {
		return Value{}, invalid(KindRef, "invalid entity id %q", ident.Truncate(string(id), 64))
	}
	return Value{Kind: KindRef, str: string(id)}, nil
}

// RefArray validates every id in ids and constructs a REF_ARRAY value.
func RefArray(ids []ident.EntityID) (Value, error) {
	cp := make([]ident.EntityID, len(ids))
	for i, id := range ids {
		if !ident.ValidateEntityID(string(id)) {
			return Value{}, invalid(KindRefArray, "invalid entity id at index %d: %q", i, ident.Truncate(string(id), 64))
		}
		cp[i] = id
	}
	return Value{Kind: KindRefArray, refs: cp}, nil
}

// JSON validates raw is well-formed JSON text and constructs a JSON value.
func JSON(raw string) (Value, error) {
	if !isValidJSON(raw) {
		return Value{}, invalid(KindJSON, "invalid JSON payload")
	}
	return Value{Kind: KindJSON, str: raw}, nil
}

// URLValue validates raw is an absolute URL and constructs a URL value.
func URLValue(raw string) (Value, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return Value{}, invalid(KindURL, "invalid absolute URL %q", ident.Truncate(raw, 64))
	}
	return Value{Kind: KindURL, str: raw}, nil
}

func validGeoPoint(p GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0) && !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// GeoPointValue validates lat/lng ranges and constructs a GEO_POINT value.
func GeoPointValue(p GeoPoint) (Value, error) {
	if !validGeoPoint(p) {
		return Value{}, invalid(KindGeoPoint, "lat/lng out of range or non-finite: %+v", p)
	}
	return Value{Kind: KindGeoPoint, pt: p}, nil
}

// GeoPolygonValue validates the exterior ring has at least 4 points and is
// closed (first == last), and that every hole obeys the same rule, then
// constructs a GEO_POLYGON value.
func GeoPolygonValue(poly GeoPolygon) (Value, error) {
	if err := validRing(poly.Exterior); err != nil {
		return Value{}, invalid(KindGeoPolygon, "exterior ring invalid: %v", err)
	}
	for i, hole := range poly.Holes {
		if err := validRing(hole); err != nil {
			return Value{}, invalid(KindGeoPolygon, "hole %d invalid: %v", i, err)
		}
	}
	cp := poly
	cp.Exterior = append([]GeoPoint(nil), poly.Exterior...)
	cp.Holes = make([][]GeoPoint, len(poly.Holes))
	for i, h := range poly.Holes {
		cp.Holes[i] = append([]GeoPoint(nil), h...)
	}
	return Value{Kind: KindGeoPolygon, poly: &cp}, nil
}

func validRing(ring []GeoPoint) error {
	if len(ring) < 4 {
		return fmt.Errorf("ring must have at least 4 points, got %d", len(ring))
	}
	first, last := ring[0], ring[len(ring)-1]
	if first != last {
		return fmt.Errorf("ring must be closed (first point must equal last)")
	}
	for _, p := range ring {
		if !validGeoPoint(p) {
			return fmt.Errorf("point %+v out of range", p)
		}
	}
	return nil
}

// GeoLineStringValue validates at least 2 points and constructs a
// GEO_LINESTRING value.
func GeoLineStringValue(points []GeoPoint) (Value, error) {
	if len(points) < 2 {
		return Value{}, invalid(KindGeoLineString, "linestring must have at least 2 points, got %d", len(points))
	}
	for i, p := range points {
		if !validGeoPoint(p) {
			return Value{}, invalid(KindGeoLineString, "point %d out of range: %+v", i, p)
		}
	}
	return Value{Kind: KindGeoLineString, line: append([]GeoPoint(nil), points...)}, nil
}

// Vector validates every component is finite and constructs a VECTOR value.
// An empty vector is permitted; dimension consistency against a registered
// predicate index is enforced by the vector index, not here (spec §3).
func Vector(components []float32) (Value, error) {
	for i, c := range components {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return Value{}, invalid(KindVector, "component %d is not finite: %v", i, c)
		}
	}
	return Value{Kind: KindVector, vec: append([]float32(nil), components...)}, nil
}

// IsValid re-checks a Value against its variant's validation rules; it is
// the runtime counterpart to the compile-time guarantee the constructors
// already provide, useful after decoding untrusted bytes.
func IsValid(v Value) bool {
	switch v.Kind {
	case KindNull, KindBool, KindInt64, KindBinary:
		return true
	case KindInt32:
		return v.i64 >= math.MinInt32 && v.i64 <= math.MaxInt32
	case KindFloat64:
		return !math.IsNaN(v.f64)
	case KindString:
		return true
	case KindTimestamp:
		return v.i64 >= 0
	case KindDate:
		_, err := time.Parse("2006-01-02", v.str)
		return err == nil
	case KindDuration:
		return isISO8601Duration(v.str)
	case KindRef:
		return ident.ValidateEntityID(v.str)
	case KindRefArray:
		for _, r := range v.refs {
			if !ident.ValidateEntityID(string(r)) {
				return false
			}
		}
		return true
	case KindJSON:
		return isValidJSON(v.str)
	case KindURL:
		u, err := url.Parse(v.str)
		return err == nil && u.IsAbs()
	case KindGeoPoint:
		return validGeoPoint(v.pt)
	case KindGeoPolygon:
		if v.poly == nil || validRing(v.poly.Exterior) != nil {
			return false
		}
		for _, h := range v.poly.Holes {
			if validRing(h) != nil {
				return false
			}
		}
		return true
	case KindGeoLineString:
		if len(v.line) < 2 {
			return false
		}
		for _, p := range v.line {
			if !validGeoPoint(p) {
				return false
			}
		}
		return true
	case KindVector:
		for _, c := range v.vec {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Accessors. Each As* returns (payload, true) iff v.Kind matches; otherwise
// the zero value and false.

func (v Value) AsBool() (bool, bool)       { return v.b, v.Kind == KindBool }
func (v Value) AsInt32() (int32, bool)     { return int32(v.i64), v.Kind == KindInt32 }
func (v Value) AsInt64() (int64, bool)     { return v.i64, v.Kind == KindInt64 }
func (v Value) AsFloat64() (float64, bool) { return v.f64, v.Kind == KindFloat64 }
func (v Value) AsString() (string, bool)   { return v.str, v.Kind == KindString }
func (v Value) AsBinary() ([]byte, bool)   { return v.bin, v.Kind == KindBinary }
func (v Value) AsTimestamp() (int64, bool) { return v.i64, v.Kind == KindTimestamp }
func (v Value) AsDate() (string, bool)     { return v.str, v.Kind == KindDate }
func (v Value) AsDuration() (string, bool) { return v.str, v.Kind == KindDuration }
func (v Value) AsRef() (ident.EntityID, bool) {
	return ident.EntityID(v.str), v.Kind == KindRef
}
func (v Value) AsRefArray() ([]ident.EntityID, bool) { return v.refs, v.Kind == KindRefArray }
func (v Value) AsJSON() (string, bool)               { return v.str, v.Kind == KindJSON }
func (v Value) AsGeoPoint() (GeoPoint, bool)         { return v.pt, v.Kind == KindGeoPoint }
func (v Value) AsGeoPolygon() (GeoPolygon, bool) {
	if v.Kind != KindGeoPolygon || v.poly == nil {
		return GeoPolygon{}, false
	}
	return *v.poly, true
}
func (v Value) AsGeoLineString() ([]GeoPoint, bool) { return v.line, v.Kind == KindGeoLineString }
func (v Value) AsURL() (string, bool)               { return v.str, v.Kind == KindURL }
func (v Value) AsVector() ([]float32, bool)         { return v.vec, v.Kind == KindVector }

// IsNull reports whether v is the NULL variant (i.e. v is a tombstone
// marker when held as a triple's object, spec §3).
func (v Value) IsNull() bool { return v.Kind == KindNull }

func invalid(k Kind, format string, args ...any) *errs.Error {
	return errs.New(errs.InvalidValue, format, args...).
		WithDetail("variant", k.String())
}
