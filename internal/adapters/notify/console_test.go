package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

const trader = domain.TraderAddress("0x1234567890abcdef1234567890abcdef12345678")

func executed() domain.ActivityRecord {
	order := domain.ReplicaOrder{
		ID:       "o1",
		Trader:   trader,
		Key:      domain.PositionKey{MarketID: "0xm1", Outcome: "Yes"},
		Title:    "Will BTC hit 100k?",
		Kind:     domain.DeltaOpened,
		Side:     domain.SideBuy,
		Quantity: 10,
		Price:    0.5,
	}
	return domain.ActivityRecord{
		Timestamp: time.Now(),
		Trader:    trader,
		Outcome:   domain.OutcomeExecuted,
		Mode:      domain.ModePaper,
		Order:     &order,
		Fill:      &domain.Fill{OrderID: "o1", Quantity: 10, Price: 0.52},
	}
}

func TestConsole_RecordExecuted(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.Record(context.Background(), executed()))

	out := buf.String()
	assert.Contains(t, out, "[PAPER]")
	assert.Contains(t, out, "0x1234…5678")
	assert.Contains(t, out, "BUY 10.00 @ 0.5200")
	assert.Contains(t, out, "$5.20")
	assert.Contains(t, out, "Will BTC hit 100k?")
}

func TestConsole_LongMultibyteTitleStaysValidUTF8(t *testing.T) {
	rec := executed()
	rec.Order.Title = strings.Repeat("¿Ganará España el Mundial? ", 3)

	var buf bytes.Buffer
	require.NoError(t, notify.NewConsoleWriter(&buf, false).Record(context.Background(), rec))

	out := buf.String()
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "¿Ganará España el Mundial? ¿Ganará ...")
}

func TestConsole_QuietUnlessVerbose(t *testing.T) {
	rec := domain.ActivityRecord{
		Trader:  trader,
		Outcome: domain.OutcomeSkipped,
		Reason:  domain.ReasonRoundingToZero,
	}

	var quiet bytes.Buffer
	require.NoError(t, notify.NewConsoleWriter(&quiet, false).Record(context.Background(), rec))
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	require.NoError(t, notify.NewConsoleWriter(&loud, true).Record(context.Background(), rec))
	assert.Contains(t, loud.String(), "rounding_to_zero")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	rec := executed()
	c.PrintReport(notify.Report{
		Mode:    domain.ModePaper,
		Traders: []domain.Trader{{Address: trader, Label: "whale", Source: domain.SourceManual, Active: true}},
		Positions: []domain.ReplicaPosition{{
			Key:      domain.PositionKey{MarketID: "0xm1", Outcome: "Yes"},
			Title:    "Will BTC hit 100k?",
			Quantity: 10,
			AvgPrice: 0.5,
			Mark:     0.6,
		}},
		Orders: []domain.OrderRecord{{
			Order:      *rec.Order,
			Status:     domain.OrderFilled,
			Fill:       *rec.Fill,
			ResolvedAt: time.Now(),
		}},
		Counts:         map[string]int{"order_executed": 3, "order_skipped:rounding_to_zero": 1},
		RealizedToday:  -2,
		DailyLossLimit: 50,
		Balance:        -1,
	})

	out := buf.String()
	assert.Contains(t, out, "POLYCOPY REPORT [PAPER]")
	assert.Contains(t, out, "whale")
	assert.Contains(t, out, "Will BTC hit 100k?")
	assert.Contains(t, out, "FILLED")
	assert.Contains(t, out, "order_skipped:rounding_to_zero")
	assert.Contains(t, out, "Daily loss:      $2.00 / $50.00")
	assert.NotContains(t, out, "USDC balance")
}

func TestConsole_PrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, false).PrintReport(notify.Report{Mode: domain.ModeLive, Balance: 12.5})

	out := buf.String()
	assert.Contains(t, out, "No traders configured.")
	assert.Contains(t, out, "No open replica positions.")
	assert.Contains(t, out, "No orders yet.")
	assert.Contains(t, out, "USDC balance:    $12.50")
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, domain.ActivityRecord) error {
	f.calls++
	return errors.New("disk full")
}

func TestFanout_DeliversToAll(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingSink{}
	logs := notify.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := notify.Fanout{bad, nil, logs}.Record(context.Background(), executed())
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Contains(t, buf.String(), `"outcome":"order_executed"`)
	assert.Contains(t, buf.String(), `"external"`)
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logs := notify.NewLogSink(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	require.NoError(t, logs.Record(context.Background(), domain.ActivityRecord{Outcome: domain.OutcomeSkipped}))
	assert.Empty(t, buf.String(), "skips are debug")

	require.NoError(t, logs.Record(context.Background(), domain.ActivityRecord{Outcome: domain.OutcomeFetchFailed, Details: "503"}))
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"details":"503"`)
}
