package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// meterFile is one CSV to convert and the key its table is stored under.
type meterFile struct {
	key  domain.Key
	kind domain.MeterKind
	path string
}

// houseFiles lists a house's files in write order: site meter, then appliances ascending.
func houseFiles(houseDir string, house int, d domain.Dataset) []meterFile {
	files := make([]meterFile, 0, d.Appliances+1)
	files = append(files, meterFile{
		key:  domain.Key{Building: house, Meter: d.SiteMeterNumber()},
		kind: domain.KindSiteMeter,
		path: domain.SiteMeterPath(houseDir),
	})
	for e := 1; e <= d.Appliances; e++ {
		files = append(files, meterFile{
			key:  domain.Key{Building: house, Meter: e},
			kind: domain.KindAppliance,
			path: domain.AppliancePath(houseDir, e),
		})
	}
	return files
}

// convertHouse reads, normalizes and stores every table of one house.
// The first failure aborts the house.
func (p *Pipeline) convertHouse(ctx context.Context, store Store, house int, report *Report) ([]domain.TableSummary, error) {
	houseDir := domain.HouseDir(p.settings.DataDir, house)
	files := houseFiles(houseDir, house, p.settings.Dataset)

	summaries := make([]domain.TableSummary, 0, len(files))
	for _, f := range files {
		summary, err := p.convertFile(ctx, store, f, report)
		if err != nil {
			return nil, fmt.Errorf("house %d meter %d (%s): %w", house, f.key.Meter, f.path, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (p *Pipeline) convertFile(ctx context.Context, store Store, f meterFile, report *Report) (domain.TableSummary, error) {
	start := domain.Now()
	p.logger.Info("reading meter", "house", f.key.Building, "meter", f.key.Meter, "kind", f.kind, "path", f.path)

	var (
		raw domain.RawSeries
		err error
	)
	switch f.kind {
	case domain.KindSiteMeter:
		raw, err = p.stages.Reader.ReadSiteMeter(f.path)
	default:
		raw, err = p.stages.Reader.ReadAppliance(f.path)
	}
	if err != nil {
		return domain.TableSummary{}, err
	}
	p.metrics.FilesRead.WithLabelValues(string(f.kind)).Inc()
	p.metrics.RowsRead.WithLabelValues(string(f.kind)).Add(float64(raw.Len()))

	table, stats, err := domain.Normalize(raw, p.settings.Normalize)
	if err != nil {
		return domain.TableSummary{}, err
	}
	p.metrics.RowsDropped.WithLabelValues("missing").Add(float64(stats.Missing))
	p.metrics.RowsDropped.WithLabelValues("duplicate").Add(float64(stats.Duplicates))

	if err := store.Put(ctx, f.key, table); err != nil {
		return domain.TableSummary{}, err
	}
	p.metrics.TablesWritten.Inc()
	p.metrics.FileProcessingDuration.WithLabelValues(string(f.kind)).Observe(domain.Since(start).Seconds())
	p.update(func(pr *domain.Progress) { pr.TablesWritten++ })

	report.Tables++
	report.RowsWritten += table.Len()
	report.RowsMissing += stats.Missing
	report.RowsDuplicate += stats.Duplicates

	p.logger.Debug("meter stored",
		"key", f.key.String(),
		"rows", table.Len(),
		"dropped_missing", stats.Missing,
		"dropped_duplicate", stats.Duplicates,
	)
	return domain.Summarize(f.key, f.kind, table, domain.Now()), nil
}
