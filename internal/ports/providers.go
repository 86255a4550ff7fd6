package ports

import (
	"context"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

// EventProvider obtiene el grupo de mercados de un evento diario desde Gamma.
type EventProvider interface {
	// FetchEventMarkets devuelve los mercados del evento con el slug dado.
	// Un evento inexistente devuelve (nil, nil): no es un error.
	FetchEventMarkets(ctx context.Context, slug string) ([]domain.Market, error)
}

// MarketProvider obtiene el precio cacheado de un mercado desde Gamma.
// Es el feed snapshot: latencia baja, staleness de minutos.
type MarketProvider interface {
	// FetchMarketBySlug devuelve el mercado individual con el slug dado,
	// o (nil, nil) si no existe.
	FetchMarketBySlug(ctx context.Context, slug string) (*domain.Market, error)
}

// BookProvider obtiene el orderbook en vivo de un token desde el CLOB.
// Es el feed real-time: timeouts más cortos que el snapshot.
type BookProvider interface {
	FetchOrderBook(ctx context.Context, tokenID string) (*domain.OrderBook, error)
}
