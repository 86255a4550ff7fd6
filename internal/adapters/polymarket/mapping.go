package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

// mapGammaMarket convierte un gammaMarket DTO a domain.Market.
// Devuelve ok=false si los precios no son usables.
func mapGammaMarket(gm gammaMarket) (domain.Market, bool) {
	yes, no, ok := parseOutcomePrices(gm.OutcomePrices)
	if !ok {
		return domain.Market{}, false
	}

	m := domain.Market{
		ConditionID: gm.ConditionID,
		Slug:        gm.Slug,
		Question:    gm.Question,
		YesPrice:    yes,
		NoPrice:     no,
	}

	if v, err := gm.Volume.Float64(); err == nil {
		m.Volume = v
	}
	m.EndDate = parseEndDate(gm.EndDate)
	m.YesTokenID, m.NoTokenID = parseTokenIDs(gm.ClobTokenIDs)

	return m, true
}

// parseOutcomePrices decodifica el array serializado "[yes, no]".
// Precios negativos se tratan como dato faltante. Un precio exactamente 0
// con contraparte >= 0.99 se clampea a 0.001: es una convención para evitar
// división por cero en el sizing, no un precio real.
func parseOutcomePrices(raw string) (yes, no float64, ok bool) {
	if raw == "" {
		return 0, 0, false
	}
	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil || len(prices) < 2 {
		return 0, 0, false
	}

	yes, errY := strconv.ParseFloat(prices[0], 64)
	no, errN := strconv.ParseFloat(prices[1], 64)
	if errY != nil || errN != nil {
		return 0, 0, false
	}
	if yes < 0 || no < 0 {
		return 0, 0, false
	}

	if yes == 0 && no >= 0.99 {
		yes = 0.001
	}
	if no == 0 && yes >= 0.99 {
		no = 0.001
	}
	return yes, no, true
}

// parseTokenIDs decodifica el array serializado de token IDs [yes, no].
func parseTokenIDs(raw string) (yesID, noID string) {
	if raw == "" {
		return "", ""
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || len(ids) < 2 {
		return "", ""
	}
	return ids[0], ids[1]
}

// parseEndDate intenta los formatos de fecha que usa Polymarket.
func parseEndDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapBook convierte la respuesta del CLOB a domain.OrderBook.
func mapBook(r bookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: r.AssetID,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
