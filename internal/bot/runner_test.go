package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ledger"
	"github.com/alf-alejandro/agente-clima/internal/ports"
	"github.com/alf-alejandro/agente-clima/internal/scanner"
)

// fakeAdvisor devuelve el mismo consejo para toda consulta.
type fakeAdvisor struct {
	advice *ports.Advice
	calls  int
}

func (f *fakeAdvisor) EvaluatePosition(context.Context, domain.Position) (*ports.Advice, error) {
	f.calls++
	return f.advice, nil
}

func (f *fakeAdvisor) EvaluateCandidate(context.Context, domain.Opportunity) (*ports.Advice, error) {
	f.calls++
	return f.advice, nil
}

func testLedger(capital float64) *ledger.Ledger {
	return ledger.New(capital, ledger.Config{
		MaxPositions:         20,
		StopLossRatio:        0.8,
		StopLossEnabled:      true,
		PartialExitThreshold: 0.70,
		MaxRegionExposure:    0.25,
	}, nil)
}

func testRunner(lg *ledger.Ledger, books *fakeBooks, advisor ports.Advisor) *Runner {
	sc := scanner.New(scanner.Config{
		MinNoPrice: 0.88, MaxNoPrice: 0.94, MaxYesPrice: 0.12,
		MinVolume: 200, MinProfitCents: 5,
	}, nil)

	return New(Config{
		ScanInterval:        30 * time.Second,
		PriceInterval:       10 * time.Second,
		AgentInterval:       5 * time.Minute,
		VerifyTopCandidates: 2,
		AgentEnabled:        advisor != nil,
	}, lg, sc, books, &fakeMarkets{}, ledger.LinearSizer{
		SizeMin: 0.05, SizeMax: 0.10, BandMin: 0.88, BandMax: 0.94,
	}, advisor, nil, nil)
}

func opp(cid, city, tokenID string, no float64) domain.Opportunity {
	return domain.Opportunity{
		ConditionID: cid,
		City:        city,
		Question:    "Highest temperature in " + city,
		Slug:        "slug-" + cid,
		NoPrice:     no,
		YesPrice:    1 - no,
		Volume:      500,
		NoTokenID:   tokenID,
	}
}

func TestVerifyTopCandidates_DropsOutOfBand(t *testing.T) {
	books := &fakeBooks{books: map[string]*domain.OrderBook{
		"t1": bookWithAsk("t1", 0.96), // se movió fuera de la banda
		"t2": bookWithAsk("t2", 0.92), // sigue dentro
	}}
	r := testRunner(testLedger(100), books, nil)

	in := []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.90),
		opp("0x2", "miami", "t2", 0.91),
		opp("0x3", "nyc", "t3", 0.89), // fuera del top-2, pasa sin verificar
	}
	out := r.verifyTopCandidates(context.Background(), in)

	require.Len(t, out, 2)
	assert.Equal(t, "0x2", out[0].ConditionID)
	// El precio verificado reemplaza al del scan.
	assert.InDelta(t, 0.92, out[0].NoPrice, 1e-9)
	assert.InDelta(t, 8.0, out[0].ProfitCents, 1e-9)
	assert.Equal(t, "0x3", out[1].ConditionID)
	assert.InDelta(t, 0.89, out[1].NoPrice, 1e-9)
}

func TestVerifyTopCandidates_BookFailureKeepsCandidate(t *testing.T) {
	books := &fakeBooks{fail: map[string]bool{"t1": true}}
	r := testRunner(testLedger(100), books, nil)

	out := r.verifyTopCandidates(context.Background(), []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.90),
	})

	require.Len(t, out, 1, "book inaccesible no descalifica")
	assert.InDelta(t, 0.90, out[0].NoPrice, 1e-9)
}

func TestEnterPositions_SizingAndGates(t *testing.T) {
	r := testRunner(testLedger(100), &fakeBooks{}, nil)

	r.enterPositions(context.Background(), []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.91),
	})

	require.Equal(t, 1, r.ledger.OpenCount())
	// Linear @ 0.91 = 7.5% de 100.
	assert.InDelta(t, 92.5, r.ledger.CapitalDisponible(), 1e-9)
}

func TestEnterPositions_RegionCap(t *testing.T) {
	lg := ledger.New(100, ledger.Config{
		MaxPositions:      20,
		MaxRegionExposure: 0.05,
		RegionOf:          func(string) string { return "all" },
	}, nil)
	r := testRunner(lg, &fakeBooks{}, nil)

	r.enterPositions(context.Background(), []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.91),
		opp("0x2", "miami", "t2", 0.91),
	})

	// La primera entrada (7.5) supera el cap regional de 5:
	// la segunda se bloquea sin error.
	assert.Equal(t, 1, lg.OpenCount())
}

func TestEnterPositions_MaxPositions(t *testing.T) {
	lg := ledger.New(100, ledger.Config{MaxPositions: 1, MaxRegionExposure: 1}, nil)
	r := testRunner(lg, &fakeBooks{}, nil)

	r.enterPositions(context.Background(), []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.91),
		opp("0x2", "miami", "t2", 0.91),
	})

	assert.Equal(t, 1, lg.OpenCount())
}

func TestEnterPositions_AdvisorSkip(t *testing.T) {
	advisor := &fakeAdvisor{advice: &ports.Advice{
		Recommendation: ports.RecommendSkip,
		Reasoning:      "ola de calor prevista",
	}}
	r := testRunner(testLedger(100), &fakeBooks{}, advisor)

	r.enterPositions(context.Background(), []domain.Opportunity{
		opp("0x1", "dallas", "t1", 0.91),
	})

	assert.Zero(t, r.ledger.OpenCount())
	assert.Equal(t, 1, advisor.calls)
}

func TestAdvisoryPass_ExitClosesPosition(t *testing.T) {
	advisor := &fakeAdvisor{advice: &ports.Advice{
		Recommendation: ports.RecommendExit,
		Reasoning:      "forecast cambió",
	}}
	lg := testLedger(100)
	require.True(t, lg.Open(opp("0x1", "dallas", "t1", 0.90), 10))
	require.True(t, lg.UpdateCurrentPrice("0x1", 0.95))

	r := testRunner(lg, &fakeBooks{}, advisor)
	r.advisoryPass(context.Background())

	assert.Zero(t, lg.OpenCount())
	snap := lg.Snapshot()
	assert.Equal(t, 1, snap.Won, "P&L positivo al cierre cuenta como WON")
	require.Len(t, snap.ClosedPositions, 1)
	assert.Contains(t, snap.ClosedPositions[0].Reason, "forecast cambió")
}

func TestAdvisoryPass_HoldKeepsPosition(t *testing.T) {
	advisor := &fakeAdvisor{advice: &ports.Advice{Recommendation: ports.RecommendHold}}
	lg := testLedger(100)
	require.True(t, lg.Open(opp("0x1", "dallas", "t1", 0.90), 10))

	r := testRunner(lg, &fakeBooks{}, advisor)
	r.advisoryPass(context.Background())

	assert.Equal(t, 1, lg.OpenCount())
	assert.Equal(t, 1, advisor.calls)
}

func TestCurrentScanInterval_HighInfoWindow(t *testing.T) {
	r := testRunner(testLedger(100), &fakeBooks{}, nil)
	r.cfg.HighInfoHoursUTC = []int{time.Now().UTC().Hour()}
	assert.Equal(t, 15*time.Second, r.currentScanInterval())

	r.cfg.HighInfoHoursUTC = nil
	assert.Equal(t, 30*time.Second, r.currentScanInterval())
}

func TestRunner_StartStop(t *testing.T) {
	r := testRunner(testLedger(100), &fakeBooks{}, nil)
	assert.False(t, r.IsRunning())

	r.Start(context.Background())
	assert.True(t, r.IsRunning())
	r.Start(context.Background()) // idempotente

	st := r.Status()
	assert.True(t, st.Running)
	assert.True(t, st.PriceLoopAlive)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop() // idempotente
}

func TestRunner_AgentToggle(t *testing.T) {
	r := testRunner(testLedger(100), &fakeBooks{}, &fakeAdvisor{})
	assert.True(t, r.Status().AgentEnabled)

	r.DisableAgent()
	assert.False(t, r.Status().AgentEnabled)
	r.EnableAgent()
	assert.True(t, r.Status().AgentEnabled)

	// Sin advisor, enable es un no-op.
	r2 := testRunner(testLedger(100), &fakeBooks{}, nil)
	r2.EnableAgent()
	assert.False(t, r2.Status().AgentEnabled)
}

func TestSyncMetrics_ConcurrentCallers(t *testing.T) {
	// El ciclo de scan y el pase del oráculo sincronizan métricas cada uno
	// desde su propia goroutine; los deltas deben poder derivarse en
	// paralelo sin carreras (ejecutar con -race).
	lg := testLedger(100)
	r := testRunner(lg, &fakeBooks{}, nil)

	require.True(t, lg.Open(opp("c1", "nyc", "t1", 0.90), 10))
	lg.ApplyPriceUpdates(map[string]ledger.PricePair{"c1": {Yes: 0.01, No: 0.99}})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.syncMetrics(lg.Snapshot())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, lg.Snapshot().Won)
}
