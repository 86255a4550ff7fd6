package ledger

import (
	"fmt"
	"sort"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

const (
	// minResolvedForInsights: con menos trades terminales los win-rates
	// son ruido, no señal.
	minResolvedForInsights = 5
	// minTradesPerBucket: un bucket con un solo trade no se reporta.
	minTradesPerBucket = 2
)

// buildInsights calcula win-rates por hora de entrada y por ciudad a partir
// de los cierres terminales (los registros PARTIAL no cuentan como trade
// resuelto). Devuelve nil si hay menos de minResolvedForInsights resueltos.
func buildInsights(closed []domain.ClosedRecord) *domain.Insights {
	var resolved []domain.ClosedRecord
	for _, rec := range closed {
		if rec.Status.Terminal() {
			resolved = append(resolved, rec)
		}
	}
	if len(resolved) < minResolvedForInsights {
		return nil
	}

	byHour := make(map[string][]domain.ClosedRecord)
	byCity := make(map[string][]domain.ClosedRecord)
	for _, rec := range resolved {
		hour := fmt.Sprintf("%02dh", rec.EntryTime.UTC().Hour())
		byHour[hour] = append(byHour[hour], rec)
		if rec.City != "" {
			byCity[rec.City] = append(byCity[rec.City], rec)
		}
	}

	return &domain.Insights{
		ByHour: bucketStats(byHour),
		ByCity: bucketStats(byCity),
	}
}

// bucketStats convierte los buckets a estadísticas, descartando los que
// tienen menos de minTradesPerBucket trades.
func bucketStats(buckets map[string][]domain.ClosedRecord) []domain.BucketStat {
	stats := make([]domain.BucketStat, 0, len(buckets))
	for key, recs := range buckets {
		if len(recs) < minTradesPerBucket {
			continue
		}
		stat := domain.BucketStat{Key: key, Trades: len(recs)}
		for _, rec := range recs {
			if rec.Status == domain.StatusWon {
				stat.Wins++
			}
			stat.PnL += rec.PnL
		}
		stat.WinRate = float64(stat.Wins) / float64(stat.Trades)
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// sortOpenSummaries ordena las posiciones abiertas por tiempo de entrada,
// más antiguas primero, para que el dashboard sea estable entre snapshots.
func sortOpenSummaries(open []domain.OpenSummary) {
	sort.Slice(open, func(i, j int) bool {
		if open[i].EntryTime.Equal(open[j].EntryTime) {
			return open[i].ConditionID < open[j].ConditionID
		}
		return open[i].EntryTime.Before(open[j].EntryTime)
	})
}
