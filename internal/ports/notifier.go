package ports

import (
	"context"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

// Notifier presenta el estado de la sesión al usuario.
type Notifier interface {
	// NotifyScan muestra las oportunidades de un ciclo de scan.
	NotifyScan(ctx context.Context, opps []domain.Opportunity) error
	// SessionReport imprime el reporte final de la sesión.
	SessionReport(ctx context.Context, snap domain.Snapshot) error
}
