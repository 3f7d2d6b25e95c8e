package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-03")
	require.NoError(t, err)
	require.Equal(t, 2025, m.Year())
	require.Equal(t, time.March, m.Month())

	_, err = ParseMonth("2025-13")
	require.Error(t, err)
	_, err = ParseMonth("03-2025")
	require.Error(t, err)
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2025, 3, 17, 14, 2, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestIsIndependentHQ(t *testing.T) {
	require.True(t, IsIndependentHQ(nil))
	require.True(t, IsIndependentHQ(&HQ{Name: "Commerces Independants"}))
	require.True(t, IsIndependentHQ(&HQ{Name: "INDEPENDENTS"}))
	require.False(t, IsIndependentHQ(&HQ{Name: "Migros"}))
}
