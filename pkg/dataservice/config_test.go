package dataservice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

func TestConfig_Validate(t *testing.T) {
	remote := func(mut func(*RemoteWarehouseConfig)) Config {
		rw := &RemoteWarehouseConfig{GatewayURL: "http://localhost:3001", EndpointURL: "adb-1.azuredatabricks.net"}
		if mut != nil {
			mut(rw)
		}
		return Config{Kind: KindRemoteWarehouse, RemoteWarehouse: rw}
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"fixture", FixtureDefault(), false},
		{"fixture without body", Config{Kind: KindFixture}, false},
		{"fixture negative delay", Config{Kind: KindFixture, Fixture: &FixtureConfig{SimulatedDelay: -1}}, true},
		{"remote", remote(nil), false},
		{"remote without body", Config{Kind: KindRemoteWarehouse}, true},
		{"remote without gateway", remote(func(rw *RemoteWarehouseConfig) { rw.GatewayURL = "" }), true},
		{"remote with ftp gateway", remote(func(rw *RemoteWarehouseConfig) { rw.GatewayURL = "ftp://gw" }), true},
		{"remote without endpoint", remote(func(rw *RemoteWarehouseConfig) { rw.EndpointURL = " " }), true},
		{"generic", Config{Kind: KindGenericAPI, GenericAPI: &GenericAPIConfig{BaseURL: "https://api.example"}}, false},
		{"generic without url", Config{Kind: KindGenericAPI, GenericAPI: &GenericAPIConfig{}}, true},
		{"no kind", Config{}, true},
		{"unknown kind", Config{Kind: "ldap"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, query.ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{
		Kind: KindRemoteWarehouse,
		RemoteWarehouse: &RemoteWarehouseConfig{
			GatewayURL:      "http://localhost:3001",
			EndpointURL:     "adb-1.azuredatabricks.net",
			CredentialToken: "dapi-secret",
		},
		GenericAPI: &GenericAPIConfig{BaseURL: "https://api.example", APIKey: "k"},
	}
	r := cfg.Redacted()
	assert.Equal(t, "********", r.RemoteWarehouse.CredentialToken)
	assert.Empty(t, r.RemoteWarehouse.GatewayAPIKey)
	assert.Equal(t, "********", r.GenericAPI.APIKey)
	assert.Equal(t, "dapi-secret", cfg.RemoteWarehouse.CredentialToken, "original untouched")
}
