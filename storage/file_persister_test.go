package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilePersister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		path         string
		existingData string
		data         string
		truncates    bool
	}{
		{
			name: "just_file",
			path: "report.json",
			data: `{"passed":1}`,
		},
		{
			name: "with_dir",
			path: "reports/nested/report.json",
			data: `{"passed":2}`,
		},
		{
			name:         "replaces",
			path:         "report.json",
			data:         `{"passed":3}`,
			truncates:    true,
			existingData: `{"passed":0,"failed":12,"errored":1}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			p := filepath.Join(dir, tt.path)

			if tt.truncates {
				err := os.WriteFile(p, []byte(tt.existingData), 0o600)
				require.NoError(t, err)
			}

			l := &LocalFilePersister{}
			err := l.Persist(context.Background(), p, strings.NewReader(tt.data))
			require.NoError(t, err)

			i, err := os.Stat(p)
			require.NoError(t, err)
			assert.False(t, i.IsDir())

			bb, err := os.ReadFile(filepath.Clean(p))
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(bb))

			// no temporary files are left behind
			files, err := os.ReadDir(filepath.Dir(p))
			require.NoError(t, err)
			assert.Len(t, files, 1)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocalFilePersisterKeepsOldFileOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o600))

	l := &LocalFilePersister{}
	err := l.Persist(context.Background(), p, failingReader{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	bb, err := os.ReadFile(filepath.Clean(p))
	require.NoError(t, err)
	assert.Equal(t, "old", string(bb))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLocalFilePersisterCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &LocalFilePersister{}
	err := l.Persist(ctx, filepath.Join(t.TempDir(), "r.json"), strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("out", "browsermatrix-abc.json"), ReportPath("out", "abc"))
}
