package bot

// prices.go — fuente de precios de dos niveles con circuit breaker.
//
// Nivel 1: book del CLOB (tiempo real, timeout corto). Nivel 2: snapshot
// de Gamma (cacheado, minutos de staleness). El breaker es por pasada:
// tras clobFailureLimit fallos consecutivos del CLOB deja de intentarlo
// durante el resto de la pasada y usa solo Gamma. Se resetea en cada
// pasada — es consultivo para un ciclo, no estado persistente.

import (
	"context"
	"log/slog"

	"github.com/alf-alejandro/agente-clima/internal/ledger"
	"github.com/alf-alejandro/agente-clima/internal/metrics"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

const (
	// clobFailureLimit: fallos consecutivos del CLOB antes de abrir el breaker.
	clobFailureLimit = 2
	// minSaneNoPrice: un NO por debajo de esto en un token que debería
	// cotizar alto es casi seguro el token equivocado. Cuenta como fallo.
	minSaneNoPrice = 0.50
)

// clobBreaker acumula fallos consecutivos del CLOB dentro de una pasada.
type clobBreaker struct {
	failures int
	tripped  bool
}

func (b *clobBreaker) fail() {
	b.failures++
	if b.failures >= clobFailureLimit && !b.tripped {
		b.tripped = true
		slog.Warn("CLOB unavailable — using Gamma for remaining positions")
	}
}

func (b *clobBreaker) ok() {
	b.failures = 0
}

// priceFetcher resuelve el precio actual de una posición por la vía de dos niveles.
type priceFetcher struct {
	books   ports.BookProvider
	markets ports.MarketProvider
}

// fetchPair devuelve los precios YES/NO frescos de una posición.
// Prefiere el book del CLOB del token NO; si el breaker está abierto o el
// dato no pasa el sanity check, cae al snapshot de Gamma. Devuelve ok=false
// si ninguna fuente tiene dato usable — la posición se salta este ciclo.
func (f *priceFetcher) fetchPair(ctx context.Context, ref ledger.PositionRef, br *clobBreaker) (ledger.PricePair, bool) {
	if !br.tripped && ref.NoTokenID != "" {
		book, err := f.books.FetchOrderBook(ctx, ref.NoTokenID)
		if err != nil {
			br.fail()
		} else if no := book.BuyPrice(); no == 0 || no < minSaneNoPrice {
			// Fuera de (0,1) o implausiblemente bajo para un NO que
			// compramos caro: sanity-rejected.
			br.fail()
		} else {
			br.ok()
			metrics.PriceSource.WithLabelValues("clob").Inc()
			return ledger.PricePair{Yes: 1 - no, No: no}, true
		}
	}

	m, err := f.markets.FetchMarketBySlug(ctx, ref.Slug)
	if err != nil || m == nil {
		if err != nil {
			slog.Debug("gamma price fetch failed", "slug", ref.Slug, "err", err)
		}
		return ledger.PricePair{}, false
	}
	metrics.PriceSource.WithLabelValues("gamma").Inc()
	return ledger.PricePair{Yes: m.YesPrice, No: m.NoPrice}, true
}

// fetchAll resuelve precios para todas las refs con un breaker nuevo.
// Las posiciones sin dato simplemente no aparecen en el resultado.
func (f *priceFetcher) fetchAll(ctx context.Context, refs []ledger.PositionRef) map[string]ledger.PricePair {
	br := &clobBreaker{}
	prices := make(map[string]ledger.PricePair, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if pp, ok := f.fetchPair(ctx, ref, br); ok {
			prices[ref.ConditionID] = pp
		}
	}
	return prices
}
