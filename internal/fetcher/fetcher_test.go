package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpener(t *testing.T) *Opener {
	t.Helper()
	o := NewOpener(Options{Timeout: 5 * time.Second, MaxRetries: 1, RatePerSecond: 100, TempDir: t.TempDir()})
	return o
}

func TestExt(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{"setores.geojson", ".geojson"},
		{"/data/MG_SETORES.SHP", ".shp"},
		{"https://example.com/malha.zip?token=abc", ".zip"},
		{"ftp://ftp.datasus.gov.br/srag/INFLUD24.csv", ".csv"},
		{"file:///tmp/cobertura.xlsx", ".xlsx"},
		{"noext", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ext(tt.src), string(tt.src))
	}
}

func TestStage_LocalPath(t *testing.T) {
	path := writeFile(t, "casos.csv", "DT_SIN_PRI\n2024-01-01\n")

	st, err := newTestOpener(t).Stage(context.Background(), Source(path))
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, path, st.Path)
	assert.Equal(t, ".csv", st.Ext)
}

func TestStage_FileURI(t *testing.T) {
	path := writeFile(t, "casos.csv", "x")

	st, err := newTestOpener(t).Stage(context.Background(), Source("file://"+path))
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, path, st.Path)
}

func TestStage_MissingFile(t *testing.T) {
	_, err := newTestOpener(t).Stage(context.Background(), "/nonexistent/setores.geojson")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStage_Directory(t *testing.T) {
	_, err := newTestOpener(t).Stage(context.Background(), Source(t.TempDir()))
	require.Error(t, err)
}

func TestStage_Empty(t *testing.T) {
	_, err := newTestOpener(t).Stage(context.Background(), "  ")
	require.Error(t, err)
}

func TestStage_UnsupportedScheme(t *testing.T) {
	_, err := newTestOpener(t).Stage(context.Background(), "s3://bucket/setores.geojson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestStage_HTTPDownloadsAndCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dados/cobertura.csv", r.URL.Path)
		_, _ = w.Write([]byte("C_Vacinal\n42.50\n"))
	}))
	defer srv.Close()

	st, err := newTestOpener(t).Stage(context.Background(), Source(srv.URL+"/dados/cobertura.csv?v=2"))
	require.NoError(t, err)
	assert.Equal(t, ".csv", st.Ext)

	data, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Equal(t, "C_Vacinal\n42.50\n", string(data))

	require.NoError(t, st.Close())
	_, err = os.Stat(st.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStage_HTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestOpener(t).Stage(context.Background(), Source(srv.URL+"/missing.csv"))
	require.Error(t, err)
}
