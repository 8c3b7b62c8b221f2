package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Console implementa ports.ActivitySink imprimiendo una línea por evento
// relevante, y además pinta el reporte del comando -report.
type Console struct {
	out     io.Writer
	verbose bool
	now     func() time.Time
}

// NewConsole crea un Console que escribe a stdout. verbose también imprime
// deltas observados y órdenes omitidas.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose, now: time.Now}
}

// NewConsoleWriter crea un Console para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose, now: time.Now}
}

// Record imprime rec en formato compacto.
func (c *Console) Record(_ context.Context, rec domain.ActivityRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	prefix := fmt.Sprintf("[%s]", ts.Local().Format("15:04:05"))
	if rec.Mode != "" {
		prefix += "[" + strings.ToUpper(string(rec.Mode)) + "]"
	}
	who := rec.Trader.Short()

	switch rec.Outcome {
	case domain.OutcomeEngineStart, domain.OutcomeEngineStop:
		fmt.Fprintf(c.out, "%s %s %s\n", prefix, rec.Outcome, rec.Details)
	case domain.OutcomeBaselineSeeded:
		fmt.Fprintf(c.out, "%s %s baseline %s\n", prefix, who, rec.Details)
	case domain.OutcomeExecuted:
		o, f := rec.Order, rec.Fill
		if o == nil || f == nil {
			return nil
		}
		fmt.Fprintf(c.out, "%s %s %s %s %.2f @ %.4f ($%.2f) %s\n",
			prefix, who, o.Kind, o.Side, f.Quantity, f.Price, f.Quantity*f.Price, marketName(o.Title, o.Key))
	case domain.OutcomeResolved:
		o, f := rec.Order, rec.Fill
		if o == nil || f == nil {
			return nil
		}
		fmt.Fprintf(c.out, "%s %s resolved %.2f @ %.2f %s\n", prefix, who, f.Quantity, f.Price, marketName(o.Title, o.Key))
	case domain.OutcomeRejected, domain.OutcomeFailed:
		fmt.Fprintf(c.out, "%s %s !! %s %s %s\n", prefix, who, rec.Outcome, rec.Reason, orderLabel(rec.Order))
	case domain.OutcomeFetchFailed, domain.OutcomeCycleAborted:
		fmt.Fprintf(c.out, "%s %s !! %s %s\n", prefix, who, rec.Outcome, rec.Details)
	case domain.OutcomeTraderAdded, domain.OutcomeTraderRemoved:
		fmt.Fprintf(c.out, "%s %s %s\n", prefix, rec.Outcome, who)
	case domain.OutcomeDeltaObserved:
		if c.verbose && rec.Delta != nil {
			d := rec.Delta
			fmt.Fprintf(c.out, "%s %s %s %s %.2f -> %.2f\n", prefix, who, d.Kind, d.Key, d.OldQty, d.NewQty)
		}
	case domain.OutcomeSkipped, domain.OutcomeDuplicate:
		if c.verbose {
			fmt.Fprintf(c.out, "%s %s >> %s %s %s\n", prefix, who, rec.Outcome, rec.Reason, orderLabel(rec.Order))
		}
	}
	return nil
}

// Report bundles everything PrintReport needs.
type Report struct {
	Mode            domain.Mode
	Traders         []domain.Trader
	Positions       []domain.ReplicaPosition
	RealizedToday   float64
	UnrealizedToday float64
	DailyLossLimit  float64
	Balance         float64 // < 0 si no se pudo consultar
	Orders          []domain.OrderRecord
	Counts          map[string]int
	Since           time.Time
}

// PrintReport pinta roster, posiciones, órdenes recientes y conteos.
func (c *Console) PrintReport(r Report) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  POLYCOPY REPORT [%s]  %s\n", strings.ToUpper(string(r.Mode)), c.now().Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "========================================================\n")

	c.printTraders(r.Traders)
	c.printPositions(r.Positions)
	c.printOrders(r.Orders)
	c.printCounts(r.Counts, r.Since)

	fmt.Fprintf(c.out, "\n  --- TODAY ---\n")
	fmt.Fprintf(c.out, "  Realized P&L:    $%.2f\n", r.RealizedToday)
	fmt.Fprintf(c.out, "  Unrealized P&L:  $%.2f\n", r.UnrealizedToday)
	if r.DailyLossLimit > 0 {
		loss := -(r.RealizedToday + r.UnrealizedToday)
		if loss < 0 {
			loss = 0
		}
		fmt.Fprintf(c.out, "  Daily loss:      $%.2f / $%.2f\n", loss, r.DailyLossLimit)
	}
	if r.Balance >= 0 {
		fmt.Fprintf(c.out, "  USDC balance:    $%.2f\n", r.Balance)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printTraders(traders []domain.Trader) {
	fmt.Fprintf(c.out, "\n  --- TRADERS (%d) ---\n", len(traders))
	if len(traders) == 0 {
		fmt.Fprintln(c.out, "  No traders configured.")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Address", "Label", "Source", "Active", "Added")
	for _, t := range traders {
		active := "yes"
		if !t.Active {
			active = "paused"
		}
		tbl.Append(string(t.Address), truncate(t.Label, 20), string(t.Source), active, t.AddedAt.Local().Format("2006-01-02"))
	}
	tbl.Render()
}

func (c *Console) printPositions(positions []domain.ReplicaPosition) {
	fmt.Fprintf(c.out, "\n  --- POSITIONS (%d) ---\n", len(positions))
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  No open replica positions.")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Market", "Outcome", "Qty", "Avg", "Mark", "Notional", "uPnL")
	var notional, upnl float64
	for _, p := range positions {
		notional += p.Notional()
		upnl += p.UnrealizedPnL()
		tbl.Append(
			marketName(p.Title, p.Key),
			p.Key.Outcome,
			fmt.Sprintf("%.2f", p.Quantity),
			fmt.Sprintf("%.4f", p.AvgPrice),
			fmt.Sprintf("%.4f", p.MarkPrice()),
			fmt.Sprintf("$%.2f", p.Notional()),
			fmt.Sprintf("$%.2f", p.UnrealizedPnL()),
		)
	}
	tbl.Render()
	fmt.Fprintf(c.out, "  Total notional $%.2f | uPnL $%.2f\n", notional, upnl)
}

func (c *Console) printOrders(orders []domain.OrderRecord) {
	fmt.Fprintf(c.out, "\n  --- RECENT ORDERS (%d) ---\n", len(orders))
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  No orders yet.")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Time", "Trader", "Market", "Kind", "Side", "Qty", "Price", "Status")
	for _, rec := range orders {
		o := rec.Order
		qty, price := o.Quantity, o.Price
		if rec.Status == domain.OrderFilled {
			qty, price = rec.Fill.Quantity, rec.Fill.Price
		}
		status := string(rec.Status)
		if rec.Reason != domain.ReasonNone {
			status += " (" + string(rec.Reason) + ")"
		}
		tbl.Append(
			rec.ResolvedAt.Local().Format("01-02 15:04"),
			o.Trader.Short(),
			marketName(o.Title, o.Key),
			o.Kind.String(),
			string(o.Side),
			fmt.Sprintf("%.2f", qty),
			fmt.Sprintf("%.4f", price),
			status,
		)
	}
	tbl.Render()
}

func (c *Console) printCounts(counts map[string]int, since time.Time) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n  --- ACTIVITY since %s ---\n", since.Local().Format("2006-01-02 15:04"))
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(c.out, "  %-48s %d\n", l, counts[l])
	}
}

// --- helpers ---

func orderLabel(o *domain.ReplicaOrder) string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf("%s %s %.2f %s", o.Kind, o.Side, o.Quantity, marketName(o.Title, o.Key))
}

func marketName(title string, key domain.PositionKey) string {
	if title != "" {
		return truncate(title, 38)
	}
	id := key.MarketID
	if len(id) > 14 {
		id = id[:12] + "..."
	}
	return id + "/" + key.Outcome
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
