package ports

import (
	"context"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

// Recommendation es la acción sugerida por el oráculo.
type Recommendation string

const (
	RecommendExit   Recommendation = "EXIT"
	RecommendHold   Recommendation = "HOLD"
	RecommendEnter  Recommendation = "ENTER"
	RecommendReduce Recommendation = "REDUCE"
	RecommendSkip   Recommendation = "SKIP"
)

// Advice es el resultado tipado de una consulta al oráculo.
// El core nunca ve el texto crudo de la respuesta.
type Advice struct {
	TrueProbNo     float64
	Recommendation Recommendation
	Reasoning      string
	DataQuality    string // HIGH | MEDIUM | LOW
}

// Advisor consulta el oráculo de forecasting externo.
// Una respuesta inalcanzable o imparseable devuelve (nil, nil):
// "sin opinión" nunca es fatal.
type Advisor interface {
	EvaluatePosition(ctx context.Context, pos domain.Position) (*Advice, error)
	EvaluateCandidate(ctx context.Context, opp domain.Opportunity) (*Advice, error)
}
