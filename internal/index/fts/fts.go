// Package fts implements spec §4.6's full-text index: a per-predicate
// inverted index over tokenized STRING/URL objects, answering MATCH
// queries with optional per-field filters and a bounded result count.
// Built on github.com/blevesearch/bleve/v2, the full-text engine the
// retrieved pack uses for this concern (the Aman-CERP manifest wires
// bleve for exactly this kind of per-namespace searchable-document
// store).
package fts

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// document is the bleve-indexed unit: one (subject, predicate) pair's
// text. Bleve indexes it under the field names Subject, Predicate and
// Text; Match filters by predicate with a term query on Predicate.
type document struct {
	Subject   string
	Predicate string
	Text      string
}

// Index is the per-shard full-text index: one bleve index directory per
// shard, documents keyed by "<subject>\x00<predicate>" so a later
// write/delete for the same pair replaces rather than duplicates.
type Index struct {
	bi bleve.Index
}

// Open opens the bleve index directory at path, creating it (with a
// default text mapping) if absent.
func Open(path string) (*Index, error) {
	bi, err := bleve.Open(path)
	if err == nil {
		return &Index{bi: bi}, nil
	}

	m := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("Text", textField)
	m.AddDocumentMapping("_default", docMapping)
	m.DefaultMapping = docMapping

	bi, err = bleve.New(path, m)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "fts: create index at %s", path)
	}
	return &Index{bi: bi}, nil
}

func docKey(subject ident.EntityID, predicate ident.Predicate) string {
	return string(subject) + "\x00" + string(predicate)
}

func (i *Index) Close() error { return i.bi.Close() }

// Index inserts or replaces the indexed text for (subject, predicate).
func (i *Index) Index(subject ident.EntityID, predicate ident.Predicate, text string) error {
	doc := document{Subject: string(subject), Predicate: string(predicate), Text: text}
	if err := i.bi.Index(docKey(subject, predicate), doc); err != nil {
		return errs.Wrap(errs.Internal, err, "fts: index document")
	}
	return nil
}

// Delete removes the indexed text for (subject, predicate), if any.
func (i *Index) Delete(subject ident.EntityID, predicate ident.Predicate) error {
	if err := i.bi.Delete(docKey(subject, predicate)); err != nil {
		return errs.Wrap(errs.Internal, err, "fts: delete document")
	}
	return nil
}

// Hit is one full-text match.
type Hit struct {
	Subject   ident.EntityID
	Predicate ident.Predicate
	Score     float64
}

// Options bounds and filters a Match call.
type Options struct {
	// Predicate restricts the search to one predicate's text; empty
	// searches every predicate.
	Predicate ident.Predicate
	Limit     int
}

// Match runs a MATCH query over indexed text. The query string is
// expected to already be sanitized by the external sanitizer collaborator
// (spec §1/§6); this package treats it as an opaque bleve query string and
// relies on bleve's query-string parser rather than building SQL, so
// characters an attacker might use for SQL injection carry no special
// meaning here.
func (i *Index) Match(ctx context.Context, text string, opts Options) ([]Hit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var q query.Query
	mq := bleve.NewMatchQuery(text)
	mq.SetField("Text")
	if opts.Predicate != "" {
		pq := bleve.NewTermQuery(string(opts.Predicate))
		pq.SetField("Predicate")
		q = bleve.NewConjunctionQuery(mq, pq)
	} else {
		q = mq
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"Subject", "Predicate"}

	result, err := i.bi.SearchInContext(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "fts: search")
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		subj, _ := h.Fields["Subject"].(string)
		pred, _ := h.Fields["Predicate"].(string)
		hits = append(hits, Hit{
			Subject:   ident.EntityID(subj),
			Predicate: ident.Predicate(pred),
			Score:     h.Score,
		})
	}
	return hits, nil
}
