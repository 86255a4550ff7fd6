package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

const (
	bookPath      = "/book"
	lastTradePath = "/last-trade-price"
)

// FetchOrderBook devuelve el orderbook en vivo del token dado.
// Si el book viene completamente vacío, intenta recuperar el último
// precio negociado como dato de último recurso.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (*domain.OrderBook, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp bookResponse
	if err := c.get(ctx, c.clobHTTP, c.clobLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("clob.FetchOrderBook: %w", err)
	}

	book := mapBook(resp)
	if book.TokenID == "" {
		book.TokenID = tokenID
	}

	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		if last, err := c.fetchLastTrade(ctx, tokenID); err == nil {
			book.LastTrade = last
		}
	}

	return &book, nil
}

// fetchLastTrade devuelve el último precio negociado del token.
func (c *Client) fetchLastTrade(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, lastTradePath, url.QueryEscape(tokenID))

	var resp lastTradeResponse
	if err := c.get(ctx, c.clobHTTP, c.clobLimiter, u, &resp); err != nil {
		return 0, fmt.Errorf("clob.fetchLastTrade: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("clob.fetchLastTrade: parse %q: %w", resp.Price, err)
	}
	return price, nil
}
