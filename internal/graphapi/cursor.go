package graphapi

import (
	"encoding/base64"
	"strconv"
)

// Page describes pagination state for a traversal or query result: the
// opaque cursor a caller echoes back to resume, and whether more results
// remain beyond the page returned.
type Page struct {
	Cursor  string
	HasMore bool
}

// encodeCursor opaquely encodes an offset. The encoding is not meant to be
// interpreted by callers — only round-tripped through decodeCursor.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// decodeCursor recovers the offset encodeCursor produced. Per spec §4.10,
// an invalid cursor (unparseable, negative, or simply empty) is treated as
// start-from-zero rather than an error.
func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// paginate slices entities to [offset, offset+limit), clamping out-of-range
// offsets, and reports whether any entities remain beyond the slice.
func paginate(entities []Entity, offset, limit int) ([]Entity, Page) {
	if offset < 0 || offset > len(entities) {
		offset = len(entities)
	}
	end := offset + limit
	hasMore := end < len(entities)
	if end > len(entities) {
		end = len(entities)
	}

	page := append([]Entity(nil), entities[offset:end]...)
	p := Page{HasMore: hasMore}
	if hasMore {
		p.Cursor = encodeCursor(end)
	}
	return page, p
}
