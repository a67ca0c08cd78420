package geo

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS geo_index (
	subject   TEXT NOT NULL,
	predicate TEXT NOT NULL,
	geohash   TEXT NOT NULL,
	lat       REAL NOT NULL,
	lng       REAL NOT NULL,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (subject, predicate)
);
CREATE INDEX IF NOT EXISTS idx_geo_predicate_hash ON geo_index(predicate, geohash);
`

// indexPrecision is the geohash length every stored point is indexed
// at; range queries choose their own lookup precision per query radius
// and take the common prefix.
const indexPrecision = maxPrecision

// Index is the per-shard geo index.
type Index struct {
	db *sql.DB
}

// Hit is one geo-index match, with its distance from a query center
// filled in by Near.
type Hit struct {
	Subject   ident.EntityID
	Predicate ident.Predicate
	Lat, Lng  float64
	DistanceKm float64
	Timestamp int64
}

// Open opens (creating if absent) the sqlite database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "geo: open %s", path)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Internal, err, "geo: ensure schema")
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

// Upsert records (or replaces) the point associated with
// (subject, predicate).
func (i *Index) Upsert(ctx context.Context, subject ident.EntityID, predicate ident.Predicate, lat, lng float64, timestamp int64) error {
	hash, err := Encode(lat, lng, indexPrecision)
	if err != nil {
		return err
	}
	_, err = i.db.ExecContext(ctx,
		`INSERT INTO geo_index (subject, predicate, geohash, lat, lng, timestamp) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject, predicate) DO UPDATE SET geohash=excluded.geohash, lat=excluded.lat, lng=excluded.lng, timestamp=excluded.timestamp`,
		string(subject), string(predicate), hash, lat, lng, timestamp,
	)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "geo: upsert point")
	}
	return nil
}

// Delete removes the point associated with (subject, predicate), if any.
func (i *Index) Delete(ctx context.Context, subject ident.EntityID, predicate ident.Predicate) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM geo_index WHERE subject = ? AND predicate = ?`, string(subject), string(predicate))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "geo: delete point")
	}
	return nil
}

// Near returns every point on predicate within radiusKm of (lat, lng),
// nearest first (spec §4.6 range-query plan: cover the query radius with
// a geohash cell and its eight neighbors, then haversine-filter).
func (i *Index) Near(ctx context.Context, predicate ident.Predicate, lat, lng, radiusKm float64) ([]Hit, error) {
	precision := PrecisionForRadiusKm(radiusKm)
	center, err := Encode(lat, lng, precision)
	if err != nil {
		return nil, err
	}
	cells, err := Neighbors(center)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(cells)+1)
	args = append(args, string(predicate))
	for _, cell := range cells {
		args = append(args, cell+"%")
	}

	query := `SELECT subject, geohash, lat, lng, timestamp FROM geo_index WHERE predicate = ? AND (`
	likes := make([]string, len(cells))
	for idx := range cells {
		likes[idx] = "geohash LIKE ?"
	}
	query += strings.Join(likes, " OR ") + ")"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "geo: query candidate cells")
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var subj, hash string
		var pLat, pLng float64
		var ts int64
		if err := rows.Scan(&subj, &hash, &pLat, &pLng, &ts); err != nil {
			return nil, errs.Wrap(errs.QueryFailed, err, "geo: scan row")
		}
		d := Haversine(lat, lng, pLat, pLng)
		if d <= radiusKm {
			hits = append(hits, Hit{
				Subject: ident.EntityID(subj), Predicate: predicate,
				Lat: pLat, Lng: pLng, DistanceKm: d, Timestamp: ts,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "geo: iterate rows")
	}

	sortHitsByDistance(hits)
	return hits, nil
}

func sortHitsByDistance(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].DistanceKm < hits[j-1].DistanceKm; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}
