// Package notify implementa la presentación en consola: una línea
// compacta por scan y el reporte de sesión en tablas.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

// Console implementa ports.Notifier sobre un io.Writer.
type Console struct {
	out io.Writer
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyScan imprime una línea compacta por ciclo: hora, candidatos y
// los primeros mercados con su precio NO.
func (c *Console) NotifyScan(_ context.Context, opps []domain.Opportunity) error {
	now := time.Now().Format("15:04:05")
	if len(opps) == 0 {
		fmt.Fprintf(c.out, "[%s] sin oportunidades\n", now)
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d candidatos", now, len(opps))
	for i, opp := range opps {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s NO %.1f¢ vol$%.0f",
			compactName(opp.Question, 28), opp.NoPrice*100, opp.Volume)
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// SessionReport imprime el resumen de la sesión: capital, posiciones
// abiertas, cierres e insights si los hay.
func (c *Console) SessionReport(_ context.Context, snap domain.Snapshot) error {
	fmt.Fprintf(c.out, "\n========== REPORTE DE SESIÓN ==========\n")
	fmt.Fprintf(c.out, "Inicio: %s | Duración: %s\n",
		snap.SessionStart.Format("2006-01-02 15:04:05"),
		time.Since(snap.SessionStart).Round(time.Second))
	fmt.Fprintf(c.out, "Capital: $%.2f → $%.2f (disponible $%.2f)\n",
		snap.CapitalInicial, snap.CapitalTotal, snap.CapitalDisponible)
	fmt.Fprintf(c.out, "P&L: %+.2f USD | ROI: %+.2f%%\n", snap.PnL, snap.ROI)
	fmt.Fprintf(c.out, "W:%d L:%d S:%d parciales:%d | abiertas:%d\n",
		snap.Won, snap.Lost, snap.Stopped, snap.Partials, len(snap.OpenPositions))

	if len(snap.OpenPositions) > 0 {
		fmt.Fprintln(c.out, "\nPosiciones abiertas:")
		c.printOpenTable(snap.OpenPositions)
	}
	if len(snap.ClosedPositions) > 0 {
		fmt.Fprintln(c.out, "\nCierres:")
		c.printClosedTable(snap.ClosedPositions)
	}
	if snap.Insights != nil {
		c.printInsights(snap.Insights)
	}
	fmt.Fprintln(c.out, "=======================================")
	return nil
}

func (c *Console) printOpenTable(open []domain.OpenSummary) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Ciudad", "Mercado", "Entrada", "Actual", "Asignado", "P&L", "Parcial")

	for _, p := range open {
		partial := ""
		if p.PartialDone {
			partial = "sí"
		}
		table.Append(
			p.City,
			compactName(p.Question, 40),
			fmt.Sprintf("%.1f¢", p.EntryNo*100),
			fmt.Sprintf("%.1f¢", p.CurrentNo*100),
			fmt.Sprintf("$%.2f", p.Allocated),
			fmt.Sprintf("%+.2f", p.PnL),
			partial,
		)
	}
	table.Render()
}

func (c *Console) printClosedTable(closed []domain.ClosedRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Ciudad", "Mercado", "Estado", "Entrada", "Salida", "P&L", "Motivo")

	for _, r := range closed {
		table.Append(
			r.City,
			compactName(r.Question, 36),
			string(r.Status),
			fmt.Sprintf("%.1f¢", r.EntryNo*100),
			fmt.Sprintf("%.1f¢", r.ExitNo*100),
			fmt.Sprintf("%+.2f", r.PnL),
			compactName(r.Reason, 32),
		)
	}
	table.Render()
}

func (c *Console) printInsights(ins *domain.Insights) {
	if len(ins.ByCity) > 0 {
		fmt.Fprintln(c.out, "\nWin-rate por ciudad:")
		c.printBuckets(ins.ByCity)
	}
	if len(ins.ByHour) > 0 {
		fmt.Fprintln(c.out, "\nWin-rate por hora de entrada (UTC):")
		c.printBuckets(ins.ByHour)
	}
}

func (c *Console) printBuckets(stats []domain.BucketStat) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Bucket", "Trades", "Wins", "Win-rate", "P&L")

	for _, s := range stats {
		table.Append(
			s.Key,
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%d", s.Wins),
			fmt.Sprintf("%.0f%%", s.WinRate*100),
			fmt.Sprintf("%+.2f", s.PnL),
		)
	}
	table.Render()
}

// compactName acorta un nombre largo para que la tabla no se desborde.
func compactName(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
