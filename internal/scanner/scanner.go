package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

// Config contiene los parámetros del scanner de oportunidades.
type Config struct {
	Cities         []string
	DaysAhead      int // escanea fechas en [hoy, hoy+DaysAhead]
	MinNoPrice     float64
	MaxNoPrice     float64
	MaxYesPrice    float64
	MinVolume      float64
	MinProfitCents float64
}

// Scanner busca contratos NO infravalorados en los mercados de temperatura.
type Scanner struct {
	cfg    Config
	events ports.EventProvider
	now    func() time.Time // inyectable en tests
}

// New crea un Scanner con el provider de eventos inyectado.
func New(cfg Config, events ports.EventProvider) *Scanner {
	return &Scanner{cfg: cfg, events: events, now: func() time.Time { return time.Now().UTC() }}
}

// Scan devuelve los candidatos que pasan todos los filtros, ordenados por
// precio NO descendente (proxy de probabilidad implícita). Los mercados en
// excluded se saltan. Un evento que falla el fetch se salta en silencio:
// un fallo transitorio solo encoge el resultado de este ciclo.
func (s *Scanner) Scan(ctx context.Context, excluded map[string]bool) []domain.Opportunity {
	now := s.now()
	var opps []domain.Opportunity

	for _, city := range s.cfg.Cities {
		for day := 0; day <= s.cfg.DaysAhead; day++ {
			if ctx.Err() != nil {
				return opps
			}
			date := now.AddDate(0, 0, day)
			slug := BuildEventSlug(city, date)

			markets, err := s.events.FetchEventMarkets(ctx, slug)
			if err != nil {
				slog.Debug("event fetch failed, skipping", "slug", slug, "err", err)
				continue
			}

			for _, m := range markets {
				if excluded[m.ConditionID] {
					continue
				}
				if !s.passes(m, now) {
					continue
				}
				opps = append(opps, domain.Opportunity{
					ConditionID: m.ConditionID,
					City:        city,
					Question:    m.Question,
					Slug:        m.Slug,
					YesPrice:    m.YesPrice,
					NoPrice:     m.NoPrice,
					Volume:      m.Volume,
					EndDate:     m.EndDate,
					ProfitCents: m.ProfitCents(),
					YesTokenID:  m.YesTokenID,
					NoTokenID:   m.NoTokenID,
					ScannedAt:   now,
				})
			}
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].NoPrice > opps[j].NoPrice
	})
	return opps
}

// passes aplica los filtros de precio, volumen, margen y vencimiento.
func (s *Scanner) passes(m domain.Market, now time.Time) bool {
	if m.Volume < s.cfg.MinVolume {
		return false
	}
	if m.NoPrice < s.cfg.MinNoPrice || m.NoPrice > s.cfg.MaxNoPrice {
		return false
	}
	if m.YesPrice > s.cfg.MaxYesPrice {
		return false
	}
	if m.ProfitCents() < s.cfg.MinProfitCents {
		return false
	}
	if m.Expired(now) {
		return false
	}
	return true
}

// InBand devuelve true si un precio NO cae dentro de la banda aceptada.
// Lo usa el runner para re-verificar candidatos contra el book en vivo.
func (s *Scanner) InBand(noPrice float64) bool {
	return noPrice >= s.cfg.MinNoPrice && noPrice <= s.cfg.MaxNoPrice
}

// BuildEventSlug construye el identificador determinista del evento diario
// de una ciudad: highest-temperature-in-<city>-on-<month>-<day>-<year>.
func BuildEventSlug(city string, date time.Time) string {
	month := monthNames[date.Month()]
	return fmt.Sprintf("highest-temperature-in-%s-on-%s-%d-%d",
		city, month, date.Day(), date.Year())
}

var monthNames = map[time.Month]string{
	time.January: "january", time.February: "february", time.March: "march",
	time.April: "april", time.May: "may", time.June: "june",
	time.July: "july", time.August: "august", time.September: "september",
	time.October: "october", time.November: "november", time.December: "december",
}
