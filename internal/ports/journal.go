package ports

import (
	"context"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

// Journal persiste el registro de auditoría de la sesión: cierres y
// serie de capital. Es append-only — el ledger nunca se reconstruye
// desde el journal al arrancar.
type Journal interface {
	RecordClose(ctx context.Context, rec domain.ClosedRecord) error
	RecordCapital(ctx context.Context, point domain.CapitalPoint) error
	ClosedRecords(ctx context.Context) ([]domain.ClosedRecord, error)
	Close() error
}
