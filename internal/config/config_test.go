package config

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxsync/internal"
	"rxsync/internal/table"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_TOP", "")
	t.Setenv("INT_COLUMNS", "RXNO, QUANT ,")
	t.Setenv("KEEP_RAW", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.LogTop)
	assert.Equal(t, []string{"RXNO", "QUANT"}, cfg.IntColumns)
	assert.True(t, cfg.KeepRaw)
	assert.Equal(t, "%RX_FINERR NIGHTLY%", cfg.LogFilePattern)
}

func TestTypeMap(t *testing.T) {
	cfg := Config{IntColumns: []string{"RXNO"}, DecimalColumns: []string{"PATIENTCOPAY"}}
	types, err := cfg.TypeMap()
	require.NoError(t, err)
	assert.Equal(t, table.ColumnInteger, types.For("RXNO"))
	assert.Equal(t, table.ColumnDecimal, types.For("PATIENTCOPAY"))
	assert.Equal(t, table.ColumnText, types.For("PATNAME"))

	cfg.DecimalColumns = append(cfg.DecimalColumns, "RXNO")
	_, err = cfg.TypeMap()
	require.Error(t, err)
	assert.True(t, eris.Is(err, internal.ErrConfiguration))
}

func TestEntities(t *testing.T) {
	cfg := Config{EntityList: "Ewing Pharmacy:62, Zarchy Pharmacy : 224"}
	got, err := cfg.Entities()
	require.NoError(t, err)
	assert.Equal(t, []internal.Entity{{Name: "Ewing Pharmacy", ID: 62}, {Name: "Zarchy Pharmacy", ID: 224}}, got)

	e, err := cfg.Entity("zarchy pharmacy")
	require.NoError(t, err)
	assert.Equal(t, 224, e.ID)

	for _, bad := range []string{"", "Ewing", "Ewing:x", ":5", "A:1,A:2", "A:1,B:1", "Ewing Pharmacy:62,ewing_pharmacy:63"} {
		_, err := Config{EntityList: bad}.Entities()
		require.Error(t, err, bad)
		assert.True(t, eris.Is(err, internal.ErrConfiguration), bad)
	}
}

func TestRequire(t *testing.T) {
	cfg := Config{}
	assert.NoError(t, cfg.Require("MSSQL_DSN", "sqlserver://x"))
	err := cfg.Require("MSSQL_DSN", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MSSQL_DSN")
}
