// Command inspect opens a finished GeLaP store, prints its table inventory and
// runs integrity checks over it: column labels, dtype, missing values, index
// ordering, the expected key layout and the attached metadata.
//
// Usage:
//
//	inspect -store /data/gelap.db -houses 20 -appliances 10 -sorted -dedup
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/gelap-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// options are the expectations checked against the store. Zero houses skips
// the key layout phase.
type options struct {
	storePath  string
	houses     int
	appliances int
	siteMeter  int
	sorted     bool
	dedup      bool
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	var opts options
	flag.StringVar(&opts.storePath, "store", "", "path to the converted store")
	flag.IntVar(&opts.houses, "houses", 0, "expected number of houses (0 skips the layout check)")
	flag.IntVar(&opts.appliances, "appliances", 0, "expected number of appliances per house")
	flag.IntVar(&opts.siteMeter, "site-meter", 0, "site meter index (default appliances+1)")
	flag.BoolVar(&opts.sorted, "sorted", true, "expect every index to be sorted")
	flag.BoolVar(&opts.dedup, "dedup", false, "expect no repeated timestamps")
	flag.Parse()

	if opts.storePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(context.Background(), opts, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, opts options, w io.Writer) int {
	store, err := sqlite.Open(ctx, opts.storePath)
	if err != nil {
		fmt.Fprintf(w, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	series, err := store.Series(ctx)
	if err != nil {
		fmt.Fprintf(w, "FATAL: list tables: %v\n", err)
		return 1
	}
	tables := make(map[domain.Key]domain.Table, len(series))
	for _, info := range series {
		t, err := store.Get(ctx, info.Key)
		if err != nil {
			fmt.Fprintf(w, "FATAL: read %s: %v\n", info.Key, err)
			return 1
		}
		tables[info.Key] = t
	}
	docs, err := store.MetadataPaths(ctx)
	if err != nil {
		fmt.Fprintf(w, "FATAL: list metadata: %v\n", err)
		return 1
	}

	fmt.Fprintf(w, "=== GeLaP store %s ===\n\n", opts.storePath)
	printInventory(w, series)

	phases := []*phase{
		validateSchema(series, tables),
		validateIndex(tables, opts.sorted, opts.dedup),
		validateMetadata(docs),
	}
	if opts.houses > 0 {
		phases = append(phases, validateLayout(series, domain.Dataset{
			Houses:     opts.houses,
			Appliances: opts.appliances,
			SiteMeter:  opts.siteMeter,
		}))
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-24s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll checks passed.")
		return 0
	}
	fmt.Fprintln(w, "\nInspection FAILED.")
	return 1
}

func printInventory(w io.Writer, series []sqlite.SeriesInfo) {
	total := 0
	for _, s := range series {
		total += s.Rows
		fmt.Fprintf(w, "%-26s %10d rows  %s .. %s\n", s.Key, s.Rows, formatTime(s.First), formatTime(s.Last))
	}
	fmt.Fprintf(w, "\n%d tables, %d rows\n", len(series), total)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// validateSchema checks the column label, dtype and value content of every table.
func validateSchema(series []sqlite.SeriesInfo, tables map[domain.Key]domain.Table) *phase {
	p := &phase{name: "Table schema"}
	wantLevels := strings.Join(domain.LevelNames[:], ",")
	for _, s := range series {
		if s.Column != domain.PowerActive {
			p.errorf("%s: column %v, want %v", s.Key, s.Column, domain.PowerActive)
		}
		if s.LevelNames != wantLevels {
			p.errorf("%s: level names %q, want %q", s.Key, s.LevelNames, wantLevels)
		}
		if s.DType != "float32" {
			p.errorf("%s: dtype %q, want float32", s.Key, s.DType)
		}
		t := tables[s.Key]
		if t.Len() != s.Rows {
			p.errorf("%s: %d rows stored, header says %d", s.Key, t.Len(), s.Rows)
		}
		for i, v := range t.Values {
			if math.IsNaN(float64(v)) {
				p.errorf("%s: missing value at row %d", s.Key, i)
				break
			}
		}
	}
	return p
}

// validateIndex checks index ordering and uniqueness as requested.
func validateIndex(tables map[domain.Key]domain.Table, sorted, dedup bool) *phase {
	p := &phase{name: "Index ordering"}
	for key, t := range tables {
		seen := make(map[int64]struct{}, t.Len())
		for i, ts := range t.Index {
			if sorted && i > 0 && ts.Before(t.Index[i-1]) {
				p.errorf("%s: row %d out of order", key, i)
				break
			}
			if dedup {
				ns := ts.UnixNano()
				if _, dup := seen[ns]; dup {
					p.errorf("%s: repeated timestamp %s", key, ts.Format(time.RFC3339Nano))
					break
				}
				seen[ns] = struct{}{}
			}
		}
	}
	return p
}

// validateLayout checks the store holds exactly N*(K+1) keys of the expected shape.
func validateLayout(series []sqlite.SeriesInfo, d domain.Dataset) *phase {
	p := &phase{name: "Key layout"}
	if err := d.Validate(); err != nil {
		p.errorf("invalid expectations: %v", err)
		return p
	}
	got := make(map[domain.Key]bool, len(series))
	for _, s := range series {
		got[s.Key] = true
	}
	want := d.Keys()
	for _, k := range want {
		if !got[k] {
			p.errorf("missing %s", k)
		}
		delete(got, k)
	}
	for k := range got {
		p.errorf("unexpected %s", k)
	}
	if len(series) != len(want) {
		p.errorf("%d tables, want %d", len(series), len(want))
	}
	return p
}

func validateMetadata(docs []string) *phase {
	p := &phase{name: "Metadata"}
	if len(docs) == 0 {
		p.errorf("no metadata documents attached")
	}
	return p
}
