package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	// Embedded zone database so Europe/Berlin resolves on hosts without tzdata.
	_ "time/tzdata"
)

const (
	DefaultSourceTimezone = "UTC"
	DefaultTargetTimezone = "Europe/Berlin"
)

// NormalizeOptions controls how a RawSeries becomes a Table.
type NormalizeOptions struct {
	Sort           bool
	DropDuplicates bool

	// Source is the zone the naive timestamps were recorded in. A reading
	// whose wall clock falls in a DST gap of Source is rejected. In a DST
	// overlap the earlier or later instant may be chosen.
	Source *time.Location
	// Target is the zone the index is presented in.
	Target *time.Location
}

// NewNormalizeOptions resolves zone names into NormalizeOptions.
func NewNormalizeOptions(sortIndex, dropDuplicates bool, source, target string) (NormalizeOptions, error) {
	src, err := time.LoadLocation(source)
	if err != nil {
		return NormalizeOptions{}, fmt.Errorf("load source timezone: %w", err)
	}
	dst, err := time.LoadLocation(target)
	if err != nil {
		return NormalizeOptions{}, fmt.Errorf("load target timezone: %w", err)
	}
	return NormalizeOptions{
		Sort:           sortIndex,
		DropDuplicates: dropDuplicates,
		Source:         src,
		Target:         dst,
	}, nil
}

// NormalizeStats counts rows removed during normalization.
type NormalizeStats struct {
	Missing    int
	Duplicates int
}

type row struct {
	ts    time.Time
	value float32
}

// Normalize converts a raw series into a canonical table:
//
//  1. values are cast to float32
//  2. naive timestamps are localized to opts.Source, then converted to opts.Target
//  3. the value column is labelled PowerActive
//  4. rows with a missing value are dropped
//  5. with DropDuplicates, later rows repeating an earlier timestamp are dropped
//  6. with Sort, rows are ordered by timestamp ascending (stable)
func Normalize(raw RawSeries, opts NormalizeOptions) (Table, NormalizeStats, error) {
	if len(raw.Timestamps) != len(raw.Values) {
		return Table{}, NormalizeStats{}, fmt.Errorf("normalize: %d timestamps but %d values", len(raw.Timestamps), len(raw.Values))
	}
	src, dst := opts.Source, opts.Target
	if src == nil {
		src = time.UTC
	}
	if dst == nil {
		dst = time.UTC
	}

	var stats NormalizeStats
	rows := make([]row, 0, raw.Len())
	for i, ms := range raw.Timestamps {
		v := float32(raw.Values[i])
		if math.IsNaN(float64(v)) {
			stats.Missing++
			continue
		}
		ts, ok := localize(ms, src)
		if !ok {
			return Table{}, NormalizeStats{}, fmt.Errorf("normalize: row %d: wall time %s does not exist in %s",
				i, time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000"), src)
		}
		rows = append(rows, row{ts: ts.In(dst), value: v})
	}

	if opts.DropDuplicates {
		seen := make(map[int64]struct{}, len(rows))
		kept := rows[:0]
		for _, r := range rows {
			k := r.ts.UnixNano()
			if _, dup := seen[k]; dup {
				stats.Duplicates++
				continue
			}
			seen[k] = struct{}{}
			kept = append(kept, r)
		}
		rows = kept
	}

	if opts.Sort {
		slices.SortStableFunc(rows, func(a, b row) int {
			return cmp.Compare(a.ts.UnixNano(), b.ts.UnixNano())
		})
	}

	t := Table{
		Column:   PowerActive,
		Location: dst,
		Index:    make([]time.Time, len(rows)),
		Values:   make([]float32, len(rows)),
	}
	for i, r := range rows {
		t.Index[i] = r.ts
		t.Values[i] = r.value
	}
	return t, stats, nil
}

// localize reads epoch milliseconds as a wall-clock reading taken in loc.
// ok is false when that wall clock never occurs in loc.
func localize(ms int64, loc *time.Location) (t time.Time, ok bool) {
	naive := time.UnixMilli(ms).UTC()
	if loc == time.UTC {
		return naive, true
	}
	t = time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc)
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	ok = y == naive.Year() && mo == naive.Month() && d == naive.Day() &&
		h == naive.Hour() && mi == naive.Minute() && sec == naive.Second()
	return t, ok
}
