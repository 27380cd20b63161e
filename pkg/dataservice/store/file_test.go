package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/budget-data-gateway/pkg/dataservice"
)

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "datasource.yaml"))

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg, "no file means no stored config")

	want := dataservice.Config{
		Kind: dataservice.KindRemoteWarehouse,
		RemoteWarehouse: &dataservice.RemoteWarehouseConfig{
			GatewayURL:      "http://localhost:3001",
			EndpointURL:     "adb-1.azuredatabricks.net",
			AccessPath:      "/sql/1.0/warehouses/abc",
			Catalog:         "main",
			CredentialToken: "dapi-secret",
		},
	}
	require.NoError(t, s.Save(want))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerms), info.Mode().Perm())

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	fixture := dataservice.Config{Kind: dataservice.KindFixture, Fixture: &dataservice.FixtureConfig{SimulatedDelay: 250 * time.Millisecond}}
	require.NoError(t, s.Save(fixture))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, fixture, *got)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing twice succeeds")
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasource.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: [oops"), filePerms))

	_, err := NewFileStore(path).Load()
	assert.ErrorContains(t, err, "parsing datasource file")
}

func TestFileStore_WithService(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "datasource.yaml"))
	require.NoError(t, s.Save(dataservice.Config{
		Kind:       dataservice.KindGenericAPI,
		GenericAPI: &dataservice.GenericAPIConfig{BaseURL: "https://api.example/v1"},
	}))

	svc, err := dataservice.New(dataservice.WithStore(s))
	require.NoError(t, err)
	assert.Equal(t, dataservice.KindGenericAPI, svc.Active().Kind)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("budget-gateway", "datasource.yaml"), filepath.Join(filepath.Base(filepath.Dir(p)), filepath.Base(p)))
}
