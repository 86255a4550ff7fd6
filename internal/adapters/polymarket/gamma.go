package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

const (
	gammaEventsPath  = "/events"
	gammaMarketsPath = "/markets"
)

// FetchEventMarkets devuelve los mercados del evento diario con el slug dado.
// Un evento inexistente devuelve (nil, nil) — no todos los slugs
// ciudad×fecha existen, y eso no es un error.
func (c *Client) FetchEventMarkets(ctx context.Context, slug string) ([]domain.Market, error) {
	u := fmt.Sprintf("%s%s?slug=%s&limit=1", c.gammaBase, gammaEventsPath, url.QueryEscape(slug))

	var resp []gammaEvent
	if err := c.get(ctx, c.gammaHTTP, c.gammaLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchEventMarkets %q: %w", slug, err)
	}
	if len(resp) == 0 {
		return nil, nil
	}

	markets := make([]domain.Market, 0, len(resp[0].Markets))
	skipped := 0
	for _, gm := range resp[0].Markets {
		m, ok := mapGammaMarket(gm)
		if !ok {
			skipped++
			continue
		}
		markets = append(markets, m)
	}

	if skipped > 0 {
		slog.Debug("event markets with unusable prices skipped",
			"event", slug, "skipped", skipped)
	}
	return markets, nil
}

// FetchMarketBySlug devuelve el precio snapshot de un mercado individual.
// Devuelve (nil, nil) si el mercado no existe o sus precios no son usables.
func (c *Client) FetchMarketBySlug(ctx context.Context, slug string) (*domain.Market, error) {
	u := fmt.Sprintf("%s%s?slug=%s&limit=1", c.gammaBase, gammaMarketsPath, url.QueryEscape(slug))

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaHTTP, c.gammaLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchMarketBySlug %q: %w", slug, err)
	}
	if len(resp) == 0 {
		return nil, nil
	}

	m, ok := mapGammaMarket(resp[0])
	if !ok {
		return nil, nil
	}
	return &m, nil
}
