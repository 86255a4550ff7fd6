package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcomePrices(t *testing.T) {
	yes, no, ok := parseOutcomePrices(`["0.08", "0.92"]`)
	require.True(t, ok)
	assert.InDelta(t, 0.08, yes, 1e-9)
	assert.InDelta(t, 0.92, no, 1e-9)
}

func TestParseOutcomePrices_ZeroClamping(t *testing.T) {
	// YES=0 con NO>=0.99 es mercado resuelto: se clampea a 0.001 para
	// mantener los precios estrictamente positivos.
	yes, no, ok := parseOutcomePrices(`["0", "0.995"]`)
	require.True(t, ok)
	assert.InDelta(t, 0.001, yes, 1e-9)
	assert.InDelta(t, 0.995, no, 1e-9)

	yes, no, ok = parseOutcomePrices(`["0.995", "0"]`)
	require.True(t, ok)
	assert.InDelta(t, 0.995, yes, 1e-9)
	assert.InDelta(t, 0.001, no, 1e-9)

	// Un 0 sin contraparte resuelta NO se clampea: es dato sospechoso
	// pero no una resolución.
	yes, no, ok = parseOutcomePrices(`["0", "0.5"]`)
	require.True(t, ok)
	assert.Zero(t, yes)
	assert.InDelta(t, 0.5, no, 1e-9)
}

func TestParseOutcomePrices_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-json",
		`["0.5"]`,
		`["abc", "0.5"]`,
		`["-0.1", "0.5"]`,
	}
	for _, raw := range cases {
		_, _, ok := parseOutcomePrices(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestParseTokenIDs(t *testing.T) {
	yesID, noID := parseTokenIDs(`["111", "222"]`)
	assert.Equal(t, "111", yesID)
	assert.Equal(t, "222", noID)

	yesID, noID = parseTokenIDs("")
	assert.Empty(t, yesID)
	assert.Empty(t, noID)

	yesID, noID = parseTokenIDs(`["solo-uno"]`)
	assert.Empty(t, yesID)
	assert.Empty(t, noID)
}

func TestParseEndDate(t *testing.T) {
	got := parseEndDate("2026-07-10T22:00:00Z")
	assert.Equal(t, time.Date(2026, 7, 10, 22, 0, 0, 0, time.UTC), got)

	got = parseEndDate("2026-07-10T22:00:00.000Z")
	assert.Equal(t, time.Date(2026, 7, 10, 22, 0, 0, 0, time.UTC), got)

	got = parseEndDate("2026-07-10")
	assert.Equal(t, time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), got)

	assert.True(t, parseEndDate("").IsZero())
	assert.True(t, parseEndDate("garbage").IsZero())
}

func TestMapGammaMarket(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0xabc",
		Question:      "Will the highest temperature in Dallas exceed 100°F?",
		Slug:          "dallas-100f",
		EndDate:       "2026-07-10T22:00:00Z",
		OutcomePrices: `["0.09", "0.91"]`,
		Volume:        json.Number("1532.5"),
		ClobTokenIDs:  `["111", "222"]`,
	}

	m, ok := mapGammaMarket(gm)
	require.True(t, ok)
	assert.Equal(t, "0xabc", m.ConditionID)
	assert.InDelta(t, 0.09, m.YesPrice, 1e-9)
	assert.InDelta(t, 0.91, m.NoPrice, 1e-9)
	assert.InDelta(t, 1532.5, m.Volume, 1e-9)
	assert.Equal(t, "111", m.YesTokenID)
	assert.Equal(t, "222", m.NoTokenID)
	assert.InDelta(t, 9.0, m.ProfitCents(), 1e-9)
}

func TestMapGammaMarket_UnusablePrices(t *testing.T) {
	_, ok := mapGammaMarket(gammaMarket{ConditionID: "0x1", OutcomePrices: ""})
	assert.False(t, ok)
}

func TestMapBookEntries(t *testing.T) {
	raw := []bookEntryRaw{
		{Price: "0.90", Size: "100"},
		{Price: "0.92", Size: "50"},
		{Price: "0.91", Size: "0"},   // size 0 se descarta
		{Price: "abc", Size: "10"},   // precio imparseable se descarta
		{Price: "0.89", Size: "200"},
	}

	asks := mapBookEntries(raw, true)
	require.Len(t, asks, 3)
	assert.InDelta(t, 0.89, asks[0].Price, 1e-9, "asks de menor a mayor")
	assert.InDelta(t, 0.92, asks[2].Price, 1e-9)

	bids := mapBookEntries(raw, false)
	require.Len(t, bids, 3)
	assert.InDelta(t, 0.92, bids[0].Price, 1e-9, "bids de mayor a menor")
	assert.InDelta(t, 0.89, bids[2].Price, 1e-9)
}
