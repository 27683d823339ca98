package mssql

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxsync/internal"
)

func TestLocations(t *testing.T) {
	ewing := internal.Entity{Name: "Ewing Pharmacy", ID: 62}
	columns := []string{"Id", "PharmacyId", "FileName", "FileInfo"}
	records := [][]any{
		{int64(12), int64(62), "RX_FINERR NIGHTLY 2.csv", []byte("nightly|https://host/2.csv|ok")},
		{int64(11), int64(62), "RX_FINERR NIGHTLY 1.csv", "nightly"},
		{int64(10), int64(62), nil, "nightly|https://host/0.csv"},
	}

	got := Locations(ewing, columns, records, 3, nil)
	require.Len(t, got, 2)
	assert.Equal(t, internal.SourceLocation{EntityID: 62, LogID: "12", FileName: "RX_FINERR NIGHTLY 2.csv", URL: "https://host/2.csv"}, got[0])
	assert.Equal(t, "https://host/0.csv", got[1].URL)
	assert.Equal(t, "", got[1].FileName)

	assert.Empty(t, Locations(ewing, columns, records, 9, nil))
}

func TestWithLocatorRequiresDSN(t *testing.T) {
	called := false
	err := WithLocator(context.Background(), " ", Options{}, nil, func(*Locator) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, internal.ErrConfiguration))
	assert.False(t, called)
}
