package archive

import (
	"archive/tar"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	body     string
	typeflag byte
}

func writeArchive(t *testing.T, path string, entries []entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	xw, err := xz.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(xw)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Typeflag: e.typeflag}
		if e.typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			hdr.Size = int64(len(e.body))
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeSymlink:
			hdr.Linkname = e.body
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := io.WriteString(tw, e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())
}

func newTestExtractor() *Extractor {
	return NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtract_WritesFiles(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "hh-01.tar.xz")
	writeArchive(t, archive, []entry{
		{name: "nested/", typeflag: tar.TypeDir},
		{name: "smartmeter.csv", body: "ts,p1\n1,2\n"},
		{name: "label_001.csv", body: "ts,x,p\n1,0,2\n"},
		{name: "nested/readme.txt", body: "hello"},
	})

	dest := filepath.Join(root, "hh-01")
	n, err := newTestExtractor().Extract(archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := os.ReadFile(filepath.Join(dest, "smartmeter.csv"))
	require.NoError(t, err)
	assert.Equal(t, "ts,p1\n1,2\n", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "nested", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExtract_OverwritesExistingFiles(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "hh-01.tar.xz")
	writeArchive(t, archive, []entry{{name: "smartmeter.csv", body: "new"}})

	dest := filepath.Join(root, "hh-01")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "smartmeter.csv"), []byte("old and longer"), 0o644))

	_, err := newTestExtractor().Extract(archive, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dest, "smartmeter.csv"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestExtract_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "hh-01.tar.xz")
	writeArchive(t, archive, []entry{
		{name: "link", body: "/etc/passwd", typeflag: tar.TypeSymlink},
		{name: "smartmeter.csv", body: "x"},
	})

	dest := filepath.Join(root, "hh-01")
	n, err := newTestExtractor().Extract(archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Lstat(filepath.Join(dest, "link"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "evil.tar.xz")
	writeArchive(t, archive, []entry{{name: "../escaped.csv", body: "x"}})

	_, err := newTestExtractor().Extract(archive, filepath.Join(root, "hh-01"))
	require.ErrorIs(t, err, ErrUnsafePath)
	_, statErr := os.Stat(filepath.Join(root, "escaped.csv"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestExtract_MissingArchive(t *testing.T) {
	root := t.TempDir()
	_, err := newTestExtractor().Extract(filepath.Join(root, "hh-09.tar.xz"), filepath.Join(root, "hh-09"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_CorruptArchive(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "hh-01.tar.xz")
	require.NoError(t, os.WriteFile(archive, []byte("definitely not xz"), 0o644))

	_, err := newTestExtractor().Extract(archive, filepath.Join(root, "hh-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read xz stream")
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join("data", "hh-01")

	got, err := safeJoin(root, "a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.csv"), got)

	got, err = safeJoin(root, "a/../b.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.csv"), got)

	for _, bad := range []string{"../x", "a/../../x", "/etc/passwd", ".."} {
		_, err := safeJoin(root, bad)
		assert.ErrorIs(t, err, ErrUnsafePath, "name %q", bad)
	}
}
