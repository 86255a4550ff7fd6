package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

func testConfig() Config {
	return Config{
		MaxPositions:         20,
		StopLossRatio:        0.8,
		StopLossEnabled:      true,
		PartialExitThreshold: 0.70,
		MaxRegionExposure:    0.25,
		RegionOf: func(city string) string {
			switch city {
			case "dallas", "houston":
				return "south"
			case "nyc", "boston":
				return "northeast"
			}
			return city
		},
	}
}

func makeOpp(cid, city string, noPrice float64) domain.Opportunity {
	return domain.Opportunity{
		ConditionID: cid,
		City:        city,
		Question:    "Highest temperature in " + city,
		Slug:        "highest-temperature-in-" + city,
		NoPrice:     noPrice,
		YesPrice:    1 - noPrice,
		Volume:      500,
	}
}

// assertCapitalInvariant verifica disponible + Σ allocated == total.
func assertCapitalInvariant(t *testing.T, l *Ledger) {
	t.Helper()
	var allocated float64
	for _, p := range l.OpenPositionCopies() {
		allocated += p.Allocated
	}
	assert.InDelta(t, l.CapitalTotal(), l.CapitalDisponible()+allocated, 1e-9)
}

func TestOpen_Accounting(t *testing.T) {
	l := New(100, testConfig(), nil)

	ok := l.Open(makeOpp("0xa", "dallas", 0.90), 10)
	require.True(t, ok)

	assert.Equal(t, 1, l.OpenCount())
	assert.InDelta(t, 90.0, l.CapitalDisponible(), 1e-9)
	assert.InDelta(t, 100.0, l.CapitalTotal(), 1e-9)

	pos := l.OpenPositionCopies()[0]
	// tokens = 10 / 0.90 = 11.111; max gain = tokens - 10 = 1.111
	assert.InDelta(t, 11.1111, pos.Tokens, 0.001)
	assert.InDelta(t, 1.1111, pos.MaxGain, 0.001)
	// stop trigger = -(1 - 0.90) * 0.8 = -0.08
	assert.InDelta(t, -0.08, pos.StopTrigger, 1e-9)

	assertCapitalInvariant(t, l)
}

func TestOpen_Rejections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 1
	l := New(100, cfg, nil)

	assert.False(t, l.Open(makeOpp("0xa", "dallas", 0.90), 0), "monto cero")
	assert.False(t, l.Open(makeOpp("0xa", "dallas", 0.90), 200), "monto > disponible")
	assert.False(t, l.Open(makeOpp("0xa", "dallas", 0), 10), "precio NO inválido")

	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))
	assert.False(t, l.Open(makeOpp("0xa", "dallas", 0.91), 10), "duplicado por condition_id")
	assert.False(t, l.Open(makeOpp("0xb", "miami", 0.90), 10), "sin hueco")

	assert.Equal(t, 1, l.OpenCount())
	assertCapitalInvariant(t, l)
}

func TestApplyPriceUpdates_Won(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.005, No: 0.995}})

	assert.Equal(t, 0, l.OpenCount())
	// pnl = max gain = 10/0.90 - 10 = 1.111
	assert.InDelta(t, 101.111, l.CapitalTotal(), 0.001)
	assert.InDelta(t, 101.111, l.CapitalDisponible(), 0.001)

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Won)
	require.Len(t, snap.ClosedPositions, 1)
	assert.Equal(t, domain.StatusWon, snap.ClosedPositions[0].Status)
	assert.NotEmpty(t, snap.ClosedPositions[0].ID)
	assertCapitalInvariant(t, l)
}

func TestApplyPriceUpdates_Lost(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.995, No: 0.005}})

	assert.Equal(t, 0, l.OpenCount())
	assert.InDelta(t, 90.0, l.CapitalTotal(), 1e-9)
	assert.InDelta(t, 90.0, l.CapitalDisponible(), 1e-9)
	assert.Equal(t, 1, l.Snapshot().Lost)
	assertCapitalInvariant(t, l)
}

func TestApplyPriceUpdates_LostTakesPriorityOverStop(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	// YES resuelto Y caída bajo el trigger: debe cerrar LOST, no STOPPED.
	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.995, No: 0.01}})

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Lost)
	assert.Equal(t, 0, snap.Stopped)
}

func TestApplyPriceUpdates_StopLoss(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	// trigger = -0.08; caída a 0.81 = -0.09 → dispara.
	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.19, No: 0.81}})

	assert.Equal(t, 0, l.OpenCount())
	// realized = (10/0.90)*0.81 - 10 = -1.0
	assert.InDelta(t, 99.0, l.CapitalTotal(), 0.001)
	assert.Equal(t, 1, l.Snapshot().Stopped)
	assertCapitalInvariant(t, l)
}

func TestApplyPriceUpdates_StopLossDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossEnabled = false
	l := New(100, cfg, nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.19, No: 0.81}})

	assert.Equal(t, 1, l.OpenCount(), "sin stop-loss la posición sigue abierta")
	pos := l.OpenPositionCopies()[0]
	assert.InDelta(t, 0.81, pos.CurrentNo, 1e-9)
}

func TestApplyPriceUpdates_SmallDipHolds(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	// caída a 0.85 = -0.05 > trigger -0.08 → aguanta.
	l.ApplyPriceUpdates(map[string]PricePair{"0xa": {Yes: 0.15, No: 0.85}})

	assert.Equal(t, 1, l.OpenCount())
	assertCapitalInvariant(t, l)
}

func TestCheckPartialExits(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.88), 10))

	// tokens = 11.3636, max gain = 1.3636. A NO=0.97 el P&L flotante es
	// 1.0227 → 75% del max gain capturado, sobre el umbral del 70%.
	require.True(t, l.UpdateCurrentPrice("0xa", 0.97))
	l.CheckPartialExits()

	require.Equal(t, 1, l.OpenCount(), "la posición sigue abierta reducida")
	pos := l.OpenPositionCopies()[0]
	assert.True(t, pos.PartialExited)
	assert.InDelta(t, 5.6818, pos.Tokens, 0.001)
	assert.InDelta(t, 5.0, pos.Allocated, 0.001)
	assert.InDelta(t, pos.Tokens-pos.Allocated, pos.MaxGain, 1e-9)

	// pnl realizado = 5.6818*0.97 - 5 = 0.5114
	assert.InDelta(t, 100.5114, l.CapitalTotal(), 0.001)
	assert.Equal(t, 1, l.Snapshot().Partials)
	assertCapitalInvariant(t, l)

	// Idempotente: una segunda pasada no vuelve a vender.
	totalBefore := l.CapitalTotal()
	l.CheckPartialExits()
	assert.InDelta(t, totalBefore, l.CapitalTotal(), 1e-9)
	assert.Equal(t, 1, l.Snapshot().Partials)
}

func TestCheckPartialExits_BelowThreshold(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.88), 10))

	// A NO=0.92 el capturado es ~33% < 70%.
	require.True(t, l.UpdateCurrentPrice("0xa", 0.92))
	l.CheckPartialExits()

	assert.False(t, l.OpenPositionCopies()[0].PartialExited)
	assert.InDelta(t, 100.0, l.CapitalTotal(), 1e-9)
}

func TestCloseAtCurrentPrice(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))
	require.True(t, l.UpdateCurrentPrice("0xa", 0.95))

	status, pnl, ok := l.CloseAtCurrentPrice("0xa", "salida por oráculo")
	require.True(t, ok)
	assert.Equal(t, domain.StatusWon, status)
	// pnl = (10/0.90)*0.95 - 10 = 0.5556
	assert.InDelta(t, 0.5556, pnl, 0.001)
	assert.Equal(t, 0, l.OpenCount())
	assertCapitalInvariant(t, l)

	_, _, ok = l.CloseAtCurrentPrice("0xa", "otra vez")
	assert.False(t, ok, "segundo cierre es no-op")
}

func TestRegionHasCapacity(t *testing.T) {
	l := New(100, testConfig(), nil)

	// Cap regional = 100 * 0.25 = 25. Dos posiciones de 12.5 en el sur
	// llenan la región exacta.
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 12.5))
	assert.True(t, l.RegionHasCapacity("houston"))
	require.True(t, l.Open(makeOpp("0xb", "houston", 0.90), 12.5))

	assert.False(t, l.RegionHasCapacity("dallas"), "región sur llena")
	assert.True(t, l.RegionHasCapacity("nyc"), "otra región sigue abierta")
}

func TestExcludedIDs(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))
	require.True(t, l.Open(makeOpp("0xb", "miami", 0.90), 10))
	l.Close("0xb", domain.StatusLost, -10, "YES resolvió")

	ids := l.ExcludedIDs()
	assert.True(t, ids["0xa"], "abierta excluida")
	assert.True(t, ids["0xb"], "cerrada en sesión también excluida")
	assert.False(t, ids["0xc"])
}

func TestSetStopLossRatio(t *testing.T) {
	l := New(100, testConfig(), nil)

	require.Error(t, l.SetStopLossRatio(0.05))
	require.Error(t, l.SetStopLossRatio(2.5))

	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))
	require.NoError(t, l.SetStopLossRatio(1.5))
	assert.InDelta(t, 1.5, l.StopLossRatio(), 1e-9)

	// El trigger de la posición existente no se recalcula.
	assert.InDelta(t, -0.08, l.OpenPositionCopies()[0].StopTrigger, 1e-9)

	// Una posición nueva usa el ratio nuevo: -(1-0.90)*1.5 = -0.15.
	require.True(t, l.Open(makeOpp("0xb", "miami", 0.90), 10))
	for _, pos := range l.OpenPositionCopies() {
		if pos.ConditionID == "0xb" {
			assert.InDelta(t, -0.15, pos.StopTrigger, 1e-9)
		}
	}
}

func TestSnapshot_InsightsGating(t *testing.T) {
	l := New(1000, testConfig(), nil)

	// 4 trades terminales: por debajo del mínimo, sin insights.
	for i := 0; i < 4; i++ {
		cid := fmt.Sprintf("0x%d", i)
		require.True(t, l.Open(makeOpp(cid, "dallas", 0.90), 5))
		l.Close(cid, domain.StatusWon, 0.5, "NO resolvió")
	}
	assert.Nil(t, l.Snapshot().Insights)

	// El quinto habilita los insights; dallas tiene 5 trades (>= 2 por bucket).
	require.True(t, l.Open(makeOpp("0x5", "dallas", 0.90), 5))
	l.Close("0x5", domain.StatusLost, -5, "YES resolvió")

	snap := l.Snapshot()
	require.NotNil(t, snap.Insights)
	require.Len(t, snap.Insights.ByCity, 1)
	city := snap.Insights.ByCity[0]
	assert.Equal(t, "dallas", city.Key)
	assert.Equal(t, 5, city.Trades)
	assert.Equal(t, 4, city.Wins)
	assert.InDelta(t, 0.8, city.WinRate, 1e-9)
}

func TestSnapshot_PartialsDoNotCountAsResolved(t *testing.T) {
	l := New(1000, testConfig(), nil)

	// 5 registros PARTIAL no habilitan insights.
	for i := 0; i < 5; i++ {
		cid := fmt.Sprintf("0x%d", i)
		require.True(t, l.Open(makeOpp(cid, "dallas", 0.88), 10))
		require.True(t, l.UpdateCurrentPrice(cid, 0.97))
	}
	l.CheckPartialExits()

	snap := l.Snapshot()
	assert.Equal(t, 5, snap.Partials)
	assert.Nil(t, snap.Insights)
}

func TestUpdateCurrentPrice_NoResolution(t *testing.T) {
	l := New(100, testConfig(), nil)
	require.True(t, l.Open(makeOpp("0xa", "dallas", 0.90), 10))

	// El refresh de precio nunca cierra, ni siquiera a NO>=0.99.
	require.True(t, l.UpdateCurrentPrice("0xa", 0.995))
	assert.Equal(t, 1, l.OpenCount())
	assert.InDelta(t, 100.0, l.CapitalTotal(), 1e-9, "P&L flotante no toca el total")

	assert.False(t, l.UpdateCurrentPrice("0xzz", 0.5))
}
