package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/surfin-dualdb/pkg/batch/test"
)

func TestLocalAdapterRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "export")
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: base}, "local")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "local", conn.Name())

	ctx := context.Background()
	require.NoError(t, conn.Upload(ctx, "primary", "records/part-0.parquet", strings.NewReader("one"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "primary", "records/part-1.parquet", strings.NewReader("two"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "primary", "other.txt", strings.NewReader("three"), "text/plain"))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "primary", "records/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"records/part-0.parquet", "records/part-1.parquet"}, names)

	rc, err := conn.Download(ctx, "primary", "records/part-1.parquet")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, conn.DeleteObject(ctx, "primary", "records/part-1.parquet"))
	require.NoError(t, conn.DeleteObject(ctx, "primary", "records/part-1.parquet"), "deleting a missing object is not an error")
	_, err = conn.Download(ctx, "primary", "records/part-1.parquet")
	assert.Error(t, err)
}

func TestLocalAdapterRejectsEscapes(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "local")
	require.NoError(t, err)

	err = conn.Upload(context.Background(), "", "../outside.txt", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
	_, err = conn.Download(context.Background(), "bucket", "../../etc/passwd")
	assert.Error(t, err)
}

func TestNewLocalAdapterValidatesBaseDir(t *testing.T) {
	_, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local"}, "local")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: file}, "local")
	assert.Error(t, err)
}

func TestLocalProviderCachesConnections(t *testing.T) {
	cfg := testutil.NewSQLiteConfig(t, t.TempDir())
	provider := local.NewLocalProvider(cfg)
	assert.Equal(t, "local", provider.Type())

	first, err := provider.GetConnection(context.Background(), "local")
	require.NoError(t, err)
	second, err := provider.GetConnection(context.Background(), "local")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = provider.GetConnection(context.Background(), "missing")
	assert.Error(t, err)
	assert.NoError(t, provider.CloseAll())
}

func TestSourceValidator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte("name;age;email\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	v := local.NewSourceValidator(dir)
	assert.Equal(t, dir, v.DataDir())

	path, err := v.Resolve("users.csv")
	require.NoError(t, err)
	assert.Equal(t, "users.csv", filepath.Base(path))
	assert.True(t, filepath.IsAbs(path))

	for _, name := range []string{"", "   ", "missing.csv", "nested", "../users.csv"} {
		_, err := v.Resolve(name)
		require.Error(t, err, "name %q", name)
		assert.True(t, exception.IsKind(err, exception.KindValidation), "name %q", name)
	}
}
