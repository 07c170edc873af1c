// Package csvsource reads GeLaP site-meter and appliance CSV files into raw series.
package csvsource

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// ErrNoValueColumns is returned when a file has a timestamp column but nothing to sum.
var ErrNoValueColumns = errors.New("no value columns")

// ParseError locates a cell that could not be parsed.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: column %d: parse %q: %v", e.Path, e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader parses dataset CSV files. It implements pipeline.SeriesReader.
type Reader struct {
	timestampColumn int
	valueColumn     int
}

// NewReader creates a Reader whose appliance files carry the timestamp and the
// power value at the given 0-based column positions.
func NewReader(applianceTimestampColumn, applianceValueColumn int) *Reader {
	return &Reader{
		timestampColumn: applianceTimestampColumn,
		valueColumn:     applianceValueColumn,
	}
}

// ReadSiteMeter reads smartmeter.csv: column 0 is the timestamp and every
// other column is one phase. Phases are summed per row; a missing phase makes
// the row's sum missing.
func (r *Reader) ReadSiteMeter(path string) (domain.RawSeries, error) {
	var series domain.RawSeries
	err := readRows(path, func(header []string) error {
		if len(header) < 2 {
			return fmt.Errorf("%s: %w", path, ErrNoValueColumns)
		}
		return nil
	}, func(line int, rec []string) error {
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return &ParseError{Path: path, Line: line, Column: 0, Value: rec[0], Err: err}
		}
		var sum float64
		for col := 1; col < len(rec); col++ {
			v, err := parseValue(rec[col])
			if err != nil {
				return &ParseError{Path: path, Line: line, Column: col, Value: rec[col], Err: err}
			}
			sum += v
		}
		series.Timestamps = append(series.Timestamps, ts)
		series.Values = append(series.Values, sum)
		return nil
	})
	if err != nil {
		return domain.RawSeries{}, err
	}
	return series, nil
}

// ReadAppliance reads label_xxx.csv, selecting the timestamp and value columns
// positionally. Other columns are ignored.
func (r *Reader) ReadAppliance(path string) (domain.RawSeries, error) {
	need := max(r.timestampColumn, r.valueColumn) + 1

	var series domain.RawSeries
	err := readRows(path, func(header []string) error {
		if len(header) < need {
			return fmt.Errorf("%s: header has %d columns, need %d", path, len(header), need)
		}
		return nil
	}, func(line int, rec []string) error {
		raw := rec[r.timestampColumn]
		ts, err := parseTimestamp(raw)
		if err != nil {
			return &ParseError{Path: path, Line: line, Column: r.timestampColumn, Value: raw, Err: err}
		}
		raw = rec[r.valueColumn]
		v, err := parseValue(raw)
		if err != nil {
			return &ParseError{Path: path, Line: line, Column: r.valueColumn, Value: raw, Err: err}
		}
		series.Timestamps = append(series.Timestamps, ts)
		series.Values = append(series.Values, v)
		return nil
	})
	if err != nil {
		return domain.RawSeries{}, err
	}
	return series, nil
}

// readRows opens path, validates the header and hands every data row to fn.
// Rows must have as many fields as the header.
func readRows(path string, checkHeader func([]string) error, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: empty file, expected a header row", path)
	}
	if err != nil {
		return fmt.Errorf("read csv header %s: %w", path, err)
	}
	if err := checkHeader(header); err != nil {
		return err
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv %s: %w", path, err)
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// parseTimestamp reads epoch milliseconds. Float notation is accepted as long
// as it is finite.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid epoch milliseconds")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("non-finite epoch milliseconds")
	}
	f = math.Round(f)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.New("epoch milliseconds out of range")
	}
	return int64(f), nil
}

// missingMarkers are the cell values read as a missing measurement. The set and
// its case-sensitive matching follow the pandas read_csv default na_values.
var missingMarkers = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// parseValue reads a power value. Missing markers become NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
