package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INVENTREE_SERVER_URL", "http://inventree.local")
	t.Setenv("INVENTREE_TOKEN", "secret")
	t.Setenv("MOUSER_PART_API_KEY", "mouser-key")
	t.Setenv("PART_KEY", " IPN ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, PartKeyIPN, cfg.PartKey)
	assert.NotEmpty(t, cfg.ImageDir)
	assert.Equal(t, "https://api.mouser.com/api/v1", cfg.Mouser.BaseURL)
	assert.False(t, cfg.Postgres.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			PartKey:   PartKeyName,
			InvenTree: InvenTreeConfig{ServerURL: "http://x", Token: "t"},
			Digikey:   DigikeyConfig{ClientID: "id", ClientSecret: "secret"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.InvenTree.Token = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvenTreeMissing)

	cfg = base()
	cfg.Digikey = DigikeyConfig{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoSupplier)

	cfg = base()
	cfg.PartKey = "sku"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPartKey)
}

func TestSuppliers_RegistrationOrder(t *testing.T) {
	cfg := &Config{
		Mouser:  MouserConfig{PartAPIKey: "k"},
		Digikey: DigikeyConfig{ClientID: "id", ClientSecret: "secret"},
	}
	assert.Equal(t, []string{SupplierDigikey, SupplierMouser}, cfg.Suppliers())

	cfg.Digikey = DigikeyConfig{}
	assert.Equal(t, []string{SupplierMouser}, cfg.Suppliers())
}

func TestIsKnownSupplier(t *testing.T) {
	assert.True(t, IsKnownSupplier("Digikey"))
	assert.True(t, IsKnownSupplier("mouser"))
	assert.False(t, IsKnownSupplier("arrow"))
}

func TestPostgresDSN(t *testing.T) {
	pc := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "synctree", SSLMode: "disable"}
	assert.True(t, pc.Enabled())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=synctree sslmode=disable", pc.DSN())
}
