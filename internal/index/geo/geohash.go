// Package geo implements spec §4.6's two-level geo index: geohash
// encoding for cell-based range queries and haversine distance for exact
// radius filtering.
package geo

import (
	"math"
	"strings"

	"github.com/dreamware/tripledb/internal/errs"
)

// alphabet is the classic geohash base32 alphabet (distinct from the
// ULID/Crockford alphabet internal/ident uses for transaction ids —
// spec §4.6 calls it "Crockford-like" because both exclude easily
// confused characters, but geohash's specific exclusion set, "a i l o",
// is the one in real-world use and is what every geohash decoder
// expects).
const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

const maxPrecision = 12

var charIndex = func() map[byte]uint64 {
	m := make(map[byte]uint64, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = uint64(i)
	}
	return m
}()

// Encode converts (lat, lng) into a base32 geohash of the given
// precision (1..12 characters). Precision controls cell size: longer
// codes are smaller, more precise cells.
func Encode(lat, lng float64, precision int) (string, error) {
	if precision < 1 || precision > maxPrecision {
		return "", errs.New(errs.InvalidValue, "geo: precision must be in [1, %d], got %d", maxPrecision, precision)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", errs.New(errs.InvalidValue, "geo: (%f, %f) is out of range", lat, lng)
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var sb strings.Builder
	bit := 0
	ch := uint64(0)
	evenBit := true // longitude first, per the standard geohash interleaving

	for sb.Len() < precision {
		if evenBit {
			mid := (lngLo + lngHi) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngLo = mid
			} else {
				ch = ch << 1
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch = ch << 1
				latHi = mid
			}
		}
		evenBit = !evenBit

		bit++
		if bit == 5 {
			sb.WriteByte(alphabet[ch])
			bit = 0
			ch = 0
		}
	}
	return sb.String(), nil
}

// Bounds is the lat/lng bounding box a geohash cell represents.
type Bounds struct {
	LatMin, LatMax float64
	LngMin, LngMax float64
}

// Center returns the bounding box's centroid.
func (b Bounds) Center() (lat, lng float64) {
	return (b.LatMin + b.LatMax) / 2, (b.LngMin + b.LngMax) / 2
}

// Decode recovers the bounding box a geohash cell represents. The
// centroid's error from the true encoded point is at most half the cell's
// diagonal (spec §4.6).
func Decode(hash string) (Bounds, error) {
	if hash == "" {
		return Bounds{}, errs.New(errs.InvalidValue, "geo: empty geohash")
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0
	evenBit := true

	for i := 0; i < len(hash); i++ {
		idx, ok := charIndex[hash[i]]
		if !ok {
			return Bounds{}, errs.New(errs.InvalidValue, "geo: invalid geohash character %q", hash[i])
		}
		for bitN := 4; bitN >= 0; bitN-- {
			bitVal := (idx >> uint(bitN)) & 1
			if evenBit {
				mid := (lngLo + lngHi) / 2
				if bitVal == 1 {
					lngLo = mid
				} else {
					lngHi = mid
				}
			} else {
				mid := (latLo + latHi) / 2
				if bitVal == 1 {
					latLo = mid
				} else {
					latHi = mid
				}
			}
			evenBit = !evenBit
		}
	}

	return Bounds{LatMin: latLo, LatMax: latHi, LngMin: lngLo, LngMax: lngHi}, nil
}

// PrecisionForRadiusKm picks the geohash precision whose approximate cell
// width is at least radiusKm, so a center cell plus its eight neighbors
// fully covers a circle of that radius (spec §4.6 range-query plan).
func PrecisionForRadiusKm(radiusKm float64) int {
	// Approximate cell widths (km) at the equator for precisions 1..12.
	widths := []float64{5000, 1250, 156, 39, 4.9, 1.2, 0.153, 0.038, 0.0048, 0.0012, 0.00015, 0.000037}
	for p, w := range widths {
		if w <= radiusKm {
			if p == 0 {
				return 1
			}
			return p
		}
	}
	return maxPrecision
}

// Neighbors returns the eight geohash cells adjacent to hash (N, NE, E,
// SE, S, SW, W, NW) plus hash itself, all at hash's own precision.
// Neighbor cells are computed by stepping the decoded bounding box's
// centroid one cell-width in each direction and re-encoding, rather than
// via geohash's bit-adjacency tables — simpler to verify correct by
// inspection, at the cost of occasionally landing one geohash bit off
// from the "true" adjacent cell near cell boundaries, which range
// queries tolerate since they haversine-filter the candidate set anyway.
func Neighbors(hash string) ([]string, error) {
	b, err := Decode(hash)
	if err != nil {
		return nil, err
	}
	precision := len(hash)
	latStep := b.LatMax - b.LatMin
	lngStep := b.LngMax - b.LngMin
	centerLat, centerLng := b.Center()

	type offset struct{ dLat, dLng float64 }
	offsets := []offset{
		{latStep, 0}, {latStep, lngStep}, {0, lngStep}, {-latStep, lngStep},
		{-latStep, 0}, {-latStep, -lngStep}, {0, -lngStep}, {latStep, -lngStep},
	}

	out := make([]string, 0, 9)
	out = append(out, hash)
	for _, o := range offsets {
		lat := clampLat(centerLat + o.dLat)
		lng := wrapLng(centerLng + o.dLng)
		code, err := Encode(lat, lng, precision)
		if err != nil {
			continue
		}
		out = append(out, code)
	}
	return dedupe(out), nil
}

func clampLat(lat float64) float64 {
	if lat > 90 {
		return 90
	}
	if lat < -90 {
		return -90
	}
	return lat
}

// wrapLng normalizes a longitude into [-180, 180], handling antimeridian
// crossing (spec §4.6: "antimeridian ... shortest-arc").
func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

func dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Haversine computes the great-circle distance in kilometers between two
// points on the WGS-84 mean sphere (radius 6371 km), per spec §4.6. At
// the poles, all longitudes collapse to the same point; across the
// antimeridian the shortest arc is always used since the formula works
// on the angular difference, not the raw longitude difference.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180

	phi1 := lat1 * rad
	phi2 := lat2 * rad
	dPhi := (lat2 - lat1) * rad
	dLambda := (lng2 - lng1) * rad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
