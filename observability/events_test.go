package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"rafflechain/core/types"
	"rafflechain/native/lottery"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func TestEventSinkRecordsPurchases(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewEventSink(logger)

	l := &lottery.Lottery{ID: [20]byte{0x01}, TicketPrice: 10, TicketAmount: 5, NextTicket: 3}
	r := lottery.TicketRange{Start: 0, Count: 3, Owner: [20]byte{0x02}}

	tickets := testutil.ToFloat64(sink.Metrics.tickets)
	fees := testutil.ToFloat64(sink.Metrics.fees)
	purchased := testutil.ToFloat64(sink.Metrics.events.WithLabelValues(lottery.EventTypeTicketsPurchased))

	sink.Emit(testEvent{lottery.NewTicketsPurchasedEvent(l, r, 3, 27)})

	if got := testutil.ToFloat64(sink.Metrics.tickets) - tickets; got != 3 {
		t.Fatalf("tickets counter advanced by %v, want 3", got)
	}
	if got := testutil.ToFloat64(sink.Metrics.fees) - fees; got != 3 {
		t.Fatalf("fee counter advanced by %v, want 3", got)
	}
	if got := testutil.ToFloat64(sink.Metrics.events.WithLabelValues(lottery.EventTypeTicketsPurchased)) - purchased; got != 1 {
		t.Fatalf("event counter advanced by %v, want 1", got)
	}
	if !strings.Contains(buf.String(), lottery.EventTypeTicketsPurchased) {
		t.Fatalf("event not logged: %s", buf.String())
	}
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("lottery_get", "-32004"))
	m.Observe("lottery_get", -32004, 0)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("lottery_get", "-32004")) - before; got != 1 {
		t.Fatalf("error counter advanced by %v, want 1", got)
	}
}
