package domain

import (
	"context"
	"time"
)

// LevelNames names the two levels of a column label.
var LevelNames = [2]string{"physical_quantity", "type"}

// Column is a two-level column label, e.g. ("power", "active").
type Column struct {
	PhysicalQuantity string
	Type             string
}

// PowerActive is the label carried by every canonical table.
var PowerActive = Column{PhysicalQuantity: "power", Type: "active"}

// RawSeries is a parsed but not yet normalized single-column series.
// Timestamps are epoch milliseconds; NaN marks a missing value.
type RawSeries struct {
	Timestamps []int64
	Values     []float64
}

// Len returns the number of rows.
func (s RawSeries) Len() int {
	return len(s.Timestamps)
}

// Table is the canonical single-column power series written to the store.
type Table struct {
	Column   Column
	Location *time.Location
	Index    []time.Time
	Values   []float32
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Index)
}

// Span returns the first and last index entries in row order.
// Both are zero for an empty table.
func (t Table) Span() (first, last time.Time) {
	if len(t.Index) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Index[0], t.Index[len(t.Index)-1]
}

// TableSummary describes one table after it has been written.
type TableSummary struct {
	Key         string    `json:"key"`
	Building    int       `json:"building"`
	Meter       int       `json:"meter"`
	Kind        MeterKind `json:"kind"`
	Rows        int       `json:"rows"`
	First       time.Time `json:"first,omitzero"`
	Last        time.Time `json:"last,omitzero"`
	ConvertedAt time.Time `json:"converted_at"`
}

// Summarize builds the summary for a table written under key.
func Summarize(key Key, kind MeterKind, t Table, convertedAt time.Time) TableSummary {
	first, last := t.Span()
	return TableSummary{
		Key:         key.String(),
		Building:    key.Building,
		Meter:       key.Meter,
		Kind:        kind,
		Rows:        t.Len(),
		First:       first,
		Last:        last,
		ConvertedAt: convertedAt,
	}
}

// TableWriter stores canonical tables under keys. Keys are write-once.
type TableWriter interface {
	Put(ctx context.Context, key Key, table Table) error
}

// MetadataWriter stores a metadata document verbatim under a path.
type MetadataWriter interface {
	PutMetadata(ctx context.Context, path string, document []byte) error
}
