package pipeline_test

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/couchcryptid/gelap-etl/internal/adapter/archive"
	"github.com/couchcryptid/gelap-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/gelap-etl/internal/adapter/metadata"
	"github.com/couchcryptid/gelap-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gelap-etl/internal/domain"
	"github.com/couchcryptid/gelap-etl/internal/pipeline"
)

// Base timestamp for fixtures: 2023-01-01T00:00:00Z.
const t0 int64 = 1672531200000

// houseFixture holds the CSV contents of one house keyed by file name.
type houseFixture map[string]string

// twoHouseFixture is the dataset used by the end-to-end tests: two houses,
// two appliances each, a three-phase site meter with one incomplete row.
func twoHouseFixture() map[int]houseFixture {
	houses := make(map[int]houseFixture, 2)
	for h := 1; h <= 2; h++ {
		base := t0 + int64(h)*3_600_000
		houses[h] = houseFixture{
			"smartmeter.csv": fmt.Sprintf("timestamp,L1,L2,L3\n%d,10,20,30\n%d,1,,3\n%d,100,200,300.5\n",
				base+2000, base+1000, base),
			"label_001.csv": fmt.Sprintf("timestamp,id,power\n%d,0,5\n%d,1,6\n%d,2,7\n",
				base, base+1000, base+1000),
			"label_002.csv": fmt.Sprintf("timestamp,id,power\n%d,0,0.5\n%d,1,nan\n",
				base+1000, base),
		}
	}
	return houses
}

func writeHouseDirs(t *testing.T, root string, houses map[int]houseFixture) {
	t.Helper()
	for h, files := range houses {
		dir := domain.HouseDir(root, h)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
		}
	}
}

func writeHouseArchives(t *testing.T, root string, houses map[int]houseFixture) {
	t.Helper()
	for h, files := range houses {
		var buf bytes.Buffer
		xw, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		tw := tar.NewWriter(xw)

		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			body := files[name]
			require.NoError(t, tw.WriteHeader(&tar.Header{
				Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg,
			}))
			_, err := io.WriteString(tw, body)
			require.NoError(t, err)
		}
		require.NoError(t, tw.Close())
		require.NoError(t, xw.Close())
		require.NoError(t, os.WriteFile(domain.ArchivePath(root, h), buf.Bytes(), 0o600))
	}
}

func writeMetadataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset.yaml"), []byte("name: GeLaP\ntimezone: Europe/Berlin\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "building1.yaml"), []byte("instance: 1\n"), 0o600))
	return dir
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func normalizeOptions(t *testing.T, sortIndex, dropDuplicates bool) domain.NormalizeOptions {
	t.Helper()
	opts, err := domain.NewNormalizeOptions(sortIndex, dropDuplicates, domain.DefaultSourceTimezone, domain.DefaultTargetTimezone)
	require.NoError(t, err)
	return opts
}

func openSQLite(ctx context.Context, path string) (pipeline.Store, error) {
	s, err := sqlite.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// realStages wires the production adapters.
func realStages(metadataDir string) pipeline.Stages {
	return pipeline.Stages{
		Extractor: archive.NewExtractor(discardLogger()),
		Reader:    csvsource.NewReader(0, 2),
		OpenStore: openSQLite,
		Metadata:  metadata.NewAttacher(metadataDir, discardLogger()),
	}
}
