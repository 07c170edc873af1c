package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// SeriesInfo is the stored description of one table.
type SeriesInfo struct {
	Key         domain.Key
	Column      domain.Column
	LevelNames  string
	DType       string
	Timezone    string
	Rows        int
	First       time.Time
	Last        time.Time
	ConvertedAt time.Time
}

// Series lists every stored table ordered by building, then meter.
func (s *Store) Series(ctx context.Context) ([]SeriesInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT building, meter, physical_quantity, type, level_names, dtype,
		timezone, row_count, first_ms, last_ms, converted_at
		FROM series ORDER BY building, meter`)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []SeriesInfo
	for rows.Next() {
		var (
			info            SeriesInfo
			firstMS, lastMS sql.NullInt64
			convertedAt     string
		)
		if err := rows.Scan(&info.Key.Building, &info.Key.Meter,
			&info.Column.PhysicalQuantity, &info.Column.Type, &info.LevelNames, &info.DType,
			&info.Timezone, &info.Rows, &firstMS, &lastMS, &convertedAt); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		loc, err := time.LoadLocation(info.Timezone)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", info.Key, err)
		}
		if firstMS.Valid {
			info.First = time.UnixMilli(firstMS.Int64).In(loc)
		}
		if lastMS.Valid {
			info.Last = time.UnixMilli(lastMS.Int64).In(loc)
		}
		if info.ConvertedAt, err = time.Parse(time.RFC3339Nano, convertedAt); err != nil {
			return nil, fmt.Errorf("series %s: converted_at: %w", info.Key, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Keys lists every stored key ordered by building, then meter.
func (s *Store) Keys(ctx context.Context) ([]domain.Key, error) {
	infos, err := s.Series(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]domain.Key, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	return keys, nil
}

// Get reads a table back in its stored row order and timezone.
func (s *Store) Get(ctx context.Context, key domain.Key) (domain.Table, error) {
	var (
		col  domain.Column
		zone string
		n    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT physical_quantity, type, timezone, row_count FROM series WHERE key = ?`, key.String(),
	).Scan(&col.PhysicalQuantity, &col.Type, &zone, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Table{}, fmt.Errorf("get %s: %w", key, ErrKeyNotFound)
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("get %s: %w", key, err)
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return domain.Table{}, fmt.Errorf("get %s: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, value FROM measurements WHERE series_key = ? ORDER BY position`, key.String())
	if err != nil {
		return domain.Table{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer rows.Close()

	t := domain.Table{
		Column:   col,
		Location: loc,
		Index:    make([]time.Time, 0, n),
		Values:   make([]float32, 0, n),
	}
	for rows.Next() {
		var (
			ms int64
			v  float64
		)
		if err := rows.Scan(&ms, &v); err != nil {
			return domain.Table{}, fmt.Errorf("get %s: scan: %w", key, err)
		}
		t.Index = append(t.Index, time.UnixMilli(ms).In(loc))
		t.Values = append(t.Values, float32(v))
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("get %s: %w", key, err)
	}
	return t, nil
}

// Metadata returns the document stored under path.
func (s *Store) Metadata(ctx context.Context, path string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM metadata WHERE path = ?`, path).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metadata %s: %w", path, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return []byte(doc), nil
}

// MetadataPaths lists the stored metadata document paths in order.
func (s *Store) MetadataPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM metadata ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
