package graphapi

import (
	"encoding/base64"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/value"
)

// coerceValue converts a caller-supplied property value into a typed Value.
// Go-native callers (tests, in-process callers) pass value.Value or the
// native Go type each variant corresponds to directly. RPC callers arrive
// over JSON, which only ever decodes to nil/bool/float64/string/[]any/
// map[string]any — composite variants (REF, the geo family, VECTOR, ...)
// are carried as a map[string]any with a single `$`-prefixed sentinel key,
// the wire convention decodeSentinelObject implements below.
func coerceValue(raw any) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Null(), nil
	case value.Value:
		return v, nil
	case bool:
		return value.Bool(v), nil
	case int32:
		return value.Int32(v), nil
	case int:
		return value.Int32FromInt64(int64(v))
	case int64:
		return value.Int64(v), nil
	case float64:
		return value.Float64(v)
	case string:
		return value.String(v), nil
	case []byte:
		return value.Binary(v), nil
	case ident.EntityID:
		return value.Ref(v)
	case []ident.EntityID:
		return value.RefArray(v)
	case value.GeoPoint:
		return value.GeoPointValue(v)
	case value.GeoPolygon:
		return value.GeoPolygonValue(v)
	case []value.GeoPoint:
		return value.GeoLineStringValue(v)
	case []float32:
		return value.Vector(v)
	case map[string]any:
		return decodeSentinelObject(v)
	default:
		return value.Value{}, errs.New(errs.InvalidValue, "unsupported property type %T", raw)
	}
}

// decodeSentinelObject decodes the JSON wire shapes for the variants that
// don't have a natural bare-JSON representation:
//
//	{"$ref": "<entityId>"}
//	{"$refs": ["<entityId>", ...]}
//	{"$geo": {"lat": <num>, "lng": <num>}}
//	{"$geoPolygon": {"exterior": [{"lat":..,"lng":..}, ...], "holes": [[...], ...]}}
//	{"$geoLineString": [{"lat":..,"lng":..}, ...]}
//	{"$vector": [<num>, ...]}
//	{"$timestamp": <millis>}
//	{"$date": "YYYY-MM-DD"}
//	{"$duration": "<ISO-8601>"}
//	{"$url": "<absolute url>"}
//	{"$binary": "<base64>"}
//	{"$json": "<raw JSON text>"}
func decodeSentinelObject(m map[string]any) (value.Value, error) {
	if raw, ok := m["$ref"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$ref must be a string")
		}
		return value.Ref(ident.EntityID(s))
	}
	if raw, ok := m["$refs"]; ok {
		items, ok := raw.([]any)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$refs must be an array")
		}
		ids := make([]ident.EntityID, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return value.Value{}, errs.New(errs.InvalidValue, "$refs[%d] must be a string", i)
			}
			ids[i] = ident.EntityID(s)
		}
		return value.RefArray(ids)
	}
	if raw, ok := m["$geo"]; ok {
		pt, err := decodeGeoPoint(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.GeoPointValue(pt)
	}
	if raw, ok := m["$geoPolygon"]; ok {
		obj, ok := raw.(map[string]any)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$geoPolygon must be an object")
		}
		exterior, err := decodeGeoRing(obj["exterior"])
		if err != nil {
			return value.Value{}, err
		}
		var holes [][]value.GeoPoint
		if rawHoles, ok := obj["holes"].([]any); ok {
			holes = make([][]value.GeoPoint, len(rawHoles))
			for i, rawHole := range rawHoles {
				hole, err := decodeGeoRing(rawHole)
				if err != nil {
					return value.Value{}, err
				}
				holes[i] = hole
			}
		}
		return value.GeoPolygonValue(value.GeoPolygon{Exterior: exterior, Holes: holes})
	}
	if raw, ok := m["$geoLineString"]; ok {
		points, err := decodeGeoRing(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.GeoLineStringValue(points)
	}
	if raw, ok := m["$vector"]; ok {
		items, ok := raw.([]any)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$vector must be an array")
		}
		components := make([]float32, len(items))
		for i, item := range items {
			f, ok := item.(float64)
			if !ok {
				return value.Value{}, errs.New(errs.InvalidValue, "$vector[%d] must be a number", i)
			}
			components[i] = float32(f)
		}
		return value.Vector(components)
	}
	if raw, ok := m["$timestamp"]; ok {
		f, ok := raw.(float64)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$timestamp must be a number")
		}
		return value.Timestamp(int64(f))
	}
	if raw, ok := m["$date"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$date must be a string")
		}
		return value.Date(s)
	}
	if raw, ok := m["$duration"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$duration must be a string")
		}
		return value.Duration(s)
	}
	if raw, ok := m["$url"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$url must be a string")
		}
		return value.URLValue(s)
	}
	if raw, ok := m["$binary"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$binary must be a base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, errs.Wrap(errs.InvalidValue, err, "decode $binary")
		}
		return value.Binary(b), nil
	}
	if raw, ok := m["$json"]; ok {
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, errs.New(errs.InvalidValue, "$json must be a string")
		}
		return value.JSON(s)
	}
	return value.Value{}, errs.New(errs.InvalidValue, "object property must carry one of the $-prefixed sentinel keys")
}

func decodeGeoPoint(raw any) (value.GeoPoint, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return value.GeoPoint{}, errs.New(errs.InvalidValue, "geo point must be an object with lat/lng")
	}
	lat, latOK := m["lat"].(float64)
	lng, lngOK := m["lng"].(float64)
	if !latOK || !lngOK {
		return value.GeoPoint{}, errs.New(errs.InvalidValue, "geo point requires numeric lat and lng")
	}
	return value.GeoPoint{Lat: lat, Lng: lng}, nil
}

func decodeGeoRing(raw any) ([]value.GeoPoint, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, errs.New(errs.InvalidValue, "geo ring must be an array of points")
	}
	points := make([]value.GeoPoint, len(items))
	for i, item := range items {
		pt, err := decodeGeoPoint(item)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidValue, err, "ring point %d", i)
		}
		points[i] = pt
	}
	return points, nil
}

// valueToAny is coerceValue's inverse: it projects a stored Value back to
// the native Go type an Entity map exposes to callers.
func valueToAny(v value.Value) any {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt32:
		n, _ := v.AsInt32()
		return n
	case value.KindInt64:
		n, _ := v.AsInt64()
		return n
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBinary:
		b, _ := v.AsBinary()
		return b
	case value.KindTimestamp:
		n, _ := v.AsTimestamp()
		return n
	case value.KindDate:
		s, _ := v.AsDate()
		return s
	case value.KindDuration:
		s, _ := v.AsDuration()
		return s
	case value.KindRef:
		r, _ := v.AsRef()
		return r
	case value.KindRefArray:
		rs, _ := v.AsRefArray()
		return rs
	case value.KindJSON:
		s, _ := v.AsJSON()
		return s
	case value.KindGeoPoint:
		p, _ := v.AsGeoPoint()
		return p
	case value.KindGeoPolygon:
		p, _ := v.AsGeoPolygon()
		return p
	case value.KindGeoLineString:
		p, _ := v.AsGeoLineString()
		return p
	case value.KindURL:
		s, _ := v.AsURL()
		return s
	case value.KindVector:
		vec, _ := v.AsVector()
		return vec
	default:
		return nil
	}
}
