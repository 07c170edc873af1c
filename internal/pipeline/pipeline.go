package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/gelap-etl/internal/domain"
	"github.com/couchcryptid/gelap-etl/internal/observability"
)

// ArchiveExtractor unpacks one house archive into a directory.
type ArchiveExtractor interface {
	Extract(archivePath, destDir string) (int, error)
}

// SeriesReader parses the two kinds of dataset CSV file.
type SeriesReader interface {
	ReadSiteMeter(path string) (domain.RawSeries, error)
	ReadAppliance(path string) (domain.RawSeries, error)
}

// Store is the output datastore for one run.
type Store interface {
	domain.TableWriter
	domain.MetadataWriter
	Close() error
}

// StoreOpener creates a fresh store at path, replacing any existing file.
type StoreOpener func(ctx context.Context, path string) (Store, error)

// MetadataAttacher copies the metadata bundle into the store.
type MetadataAttacher interface {
	Attach(ctx context.Context, w domain.MetadataWriter) (int, error)
}

// Notifier announces the tables written for a house. Optional.
type Notifier interface {
	Notify(ctx context.Context, tables []domain.TableSummary) error
}

// Settings are the per-run parameters.
type Settings struct {
	DataDir     string
	OutputPath  string
	Dataset     domain.Dataset
	SkipExtract bool
	Normalize   domain.NormalizeOptions
}

// Stages are the collaborators a run is composed of. Notifier may be nil.
type Stages struct {
	Extractor ArchiveExtractor
	Reader    SeriesReader
	OpenStore StoreOpener
	Metadata  MetadataAttacher
	Notifier  Notifier
}

// Report summarizes a completed run.
type Report struct {
	ArchivesExtracted int
	Houses            int
	Tables            int
	RowsWritten       int
	RowsMissing       int
	RowsDuplicate     int
	MetadataDocuments int
	Duration          time.Duration
}

// Pipeline converts the dataset into one store: extract, convert every house, attach metadata.
type Pipeline struct {
	settings Settings
	stages   Stages
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	progress domain.Progress
}

// New creates a Pipeline with the given settings, stages and observability.
func New(settings Settings, stages Stages, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		settings: settings,
		stages:   stages,
		logger:   logger,
		metrics:  metrics,
		progress: domain.Progress{
			Stage:       domain.StagePending,
			HousesTotal: settings.Dataset.Houses,
		},
	}
}

// Progress returns a snapshot of the run's progress. Safe for concurrent use.
func (p *Pipeline) Progress() domain.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// CheckReadiness returns nil once the run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	pr := p.Progress()
	switch pr.Stage {
	case domain.StageDone:
		return nil
	case domain.StageFailed:
		return fmt.Errorf("conversion failed: %s", pr.Error)
	default:
		return fmt.Errorf("conversion in progress: %s", pr.Stage)
	}
}

func (p *Pipeline) update(fn func(*domain.Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.progress)
}

// Run executes the whole conversion. Any error aborts the run; output
// written before the failure is left in place.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if err := p.settings.Dataset.Validate(); err != nil {
		return Report{}, err
	}

	start := domain.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report, err := p.run(ctx)
	report.Duration = domain.Since(start)
	if err != nil {
		p.update(func(pr *domain.Progress) {
			pr.Stage = domain.StageFailed
			pr.Error = err.Error()
		})
		return report, err
	}

	p.update(func(pr *domain.Progress) { pr.Stage = domain.StageDone })
	p.logger.Info("done converting GeLaP",
		"output", p.settings.OutputPath,
		"houses", report.Houses,
		"tables", report.Tables,
		"rows", report.RowsWritten,
		"dropped_missing", report.RowsMissing,
		"dropped_duplicate", report.RowsDuplicate,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context) (Report, error) {
	var report Report
	d := p.settings.Dataset

	if p.settings.SkipExtract {
		p.logger.Info("skipping archive extraction")
	} else {
		p.update(func(pr *domain.Progress) { pr.Stage = domain.StageExtracting })
		n, err := p.extractAll(d.Houses)
		report.ArchivesExtracted = n
		if err != nil {
			return report, err
		}
	}

	store, err := p.stages.OpenStore(ctx, p.settings.OutputPath)
	if err != nil {
		return report, fmt.Errorf("create store: %w", err)
	}

	if err := p.convertAll(ctx, store, &report); err != nil {
		return report, errors.Join(err, p.closeStore(store))
	}

	p.update(func(pr *domain.Progress) { pr.Stage = domain.StageMetadata })
	docs, err := p.stages.Metadata.Attach(ctx, store)
	if err != nil {
		return report, errors.Join(fmt.Errorf("attach metadata: %w", err), p.closeStore(store))
	}
	report.MetadataDocuments = docs
	p.logger.Info("metadata attached", "documents", docs)

	if err := p.closeStore(store); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) extractAll(houses int) (int, error) {
	extracted := 0
	for h := 1; h <= houses; h++ {
		archive := domain.ArchivePath(p.settings.DataDir, h)
		dest := domain.HouseDir(p.settings.DataDir, h)
		p.logger.Info("uncompressing house archive", "house", h, "archive", archive)

		files, err := p.stages.Extractor.Extract(archive, dest)
		if err != nil {
			return extracted, fmt.Errorf("extract house %d: %w", h, err)
		}
		extracted++
		p.metrics.ArchivesExtracted.Inc()
		p.logger.Debug("house archive extracted", "house", h, "files", files, "dest", dest)
	}
	return extracted, nil
}

func (p *Pipeline) convertAll(ctx context.Context, store Store, report *Report) error {
	p.update(func(pr *domain.Progress) { pr.Stage = domain.StageConverting })

	for h := 1; h <= p.settings.Dataset.Houses; h++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("before house %d: %w", h, err)
		}
		p.logger.Info("converting house", "house", h)
		summaries, err := p.convertHouse(ctx, store, h, report)
		if err != nil {
			return err
		}
		report.Houses++
		p.metrics.HousesConverted.Inc()
		p.update(func(pr *domain.Progress) { pr.HousesDone++ })

		if p.stages.Notifier != nil {
			if err := p.stages.Notifier.Notify(ctx, summaries); err != nil {
				return fmt.Errorf("notify house %d: %w", h, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) closeStore(store Store) error {
	if err := store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
