package local_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/datasus/sihrd/pkg/batch/adapter/storage"
	"github.com/datasus/sihrd/pkg/batch/adapter/storage/local"
	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
)

func newResolver(t *testing.T) *storageAdapter.ConnectionResolver {
	t.Helper()
	cfg := &coreConfig.Config{Surfin: coreConfig.SurfinConfig{
		AdapterConfigs: map[string]interface{}{
			"storage": map[string]interface{}{
				"lake": map[string]interface{}{
					"type":        "local",
					"base_dir":    t.TempDir(),
					"bucket_name": "datasus",
				},
			},
		},
	}}
	return storageAdapter.NewResolver(cfg, local.NewLocalProvider(cfg))
}

func TestLocalAdapter_UploadDownloadList(t *testing.T) {
	ctx := context.Background()
	conn, err := newResolver(t).ResolveStorageConnection(ctx, "lake")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())

	for _, name := range []string{"raw/RDSP2001.parquet", "raw/RDRJ2001.parquet", "lookup/lookup_municipality.csv"} {
		require.NoError(t, conn.Upload(ctx, "", name, strings.NewReader(name), "application/octet-stream"))
	}

	var listed []string
	require.NoError(t, conn.ListObjects(ctx, "", "raw/", func(objectName string) error {
		listed = append(listed, objectName)
		return nil
	}))
	assert.Equal(t, []string{"raw/RDRJ2001.parquet", "raw/RDSP2001.parquet"}, listed)

	r, err := conn.Download(ctx, "", "lookup/lookup_municipality.csv")
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "lookup/lookup_municipality.csv", string(body))
}

func TestLocalAdapter_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	conn, err := newResolver(t).ResolveStorageConnection(ctx, "lake")
	require.NoError(t, err)

	require.NoError(t, conn.Upload(ctx, "", "export/uf=35/year=2020/month=3/part-00000.parquet", strings.NewReader("a"), ""))
	require.NoError(t, conn.Upload(ctx, "", "export/uf=33/year=2020/month=3/part-00000.parquet", strings.NewReader("b"), ""))
	require.NoError(t, conn.Upload(ctx, "", "keep.txt", strings.NewReader("c"), ""))

	n, err := storageAdapter.DeletePrefix(ctx, conn, "", "export/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var left []string
	require.NoError(t, conn.ListObjects(ctx, "", "", func(objectName string) error {
		left = append(left, objectName)
		return nil
	}))
	assert.Equal(t, []string{"keep.txt"}, left)

	assert.NoError(t, conn.DeleteObject(ctx, "", "missing.txt"))
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	conn, err := newResolver(t).ResolveStorageConnection(ctx, "lake")
	require.NoError(t, err)

	err = conn.Upload(ctx, "", "../../etc/passwd", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestResolver_UnknownConnection(t *testing.T) {
	_, err := newResolver(t).ResolveStorageConnection(context.Background(), "nope")
	assert.Error(t, err)
}
