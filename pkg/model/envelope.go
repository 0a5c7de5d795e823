// Package model defines the data envelope connectors use to hand ingested
// data back to the orchestrator, independent of protocol.
package model

import "time"

// ItemKind discriminates the shape carried by an IngestedItem.
type ItemKind string

const (
	// KindRow is a single flat record, e.g. one database row or one JSON object.
	KindRow ItemKind = "row"
	// KindRows is a batch of flat records fetched together, e.g. one page of results.
	KindRows ItemKind = "rows"
	// KindScalar is a bare value with no row shape, e.g. a file's raw bytes or a count.
	KindScalar ItemKind = "scalar"
	// KindPreStaged marks data the connector already wrote to a staging-compatible
	// location itself (e.g. an FTP download landed directly on disk); the
	// staging writer should pass it through rather than re-serialize it.
	KindPreStaged ItemKind = "pre_staged"
)

// IngestedItem is one unit of data produced by a connector's Fetch call.
type IngestedItem struct {
	Kind ItemKind

	Row    map[string]interface{}
	Rows   []map[string]interface{}
	Scalar interface{}

	// PreStagedPath is set when Kind is KindPreStaged and points at the
	// file the connector already wrote.
	PreStagedPath string
}

// IngestionResult is the complete output of a single Fetch call.
type IngestionResult struct {
	Protocol  string
	Success   bool
	Items     []IngestedItem
	Metadata  map[string]interface{}
	FetchedAt time.Time
}

// RowCount returns the total number of flat rows represented by the result,
// counting both KindRow and KindRows items.
func (r *IngestionResult) RowCount() int {
	count := 0
	for _, item := range r.Items {
		switch item.Kind {
		case KindRow:
			count++
		case KindRows:
			count += len(item.Rows)
		}
	}
	return count
}
