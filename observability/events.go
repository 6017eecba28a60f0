package observability

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rafflechain/core/events"
	"rafflechain/native/lottery"
)

type lotteryMetrics struct {
	events   *prometheus.CounterVec
	tickets  prometheus.Counter
	fees     prometheus.Counter
	proceeds prometheus.Counter
	prizes   prometheus.Counter
}

var (
	lotteryMetricsOnce sync.Once
	lotteryRegistry    *lotteryMetrics
)

// Lottery returns the metrics registry tracking lottery lifecycle events.
func Lottery() *lotteryMetrics {
	lotteryMetricsOnce.Do(func() {
		counter := func(name, help string) prometheus.Counter {
			return prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "lottery",
				Name:      name,
				Help:      help,
			})
		}
		lotteryRegistry = &lotteryMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "lottery",
				Name:      "events_total",
				Help:      "Count of lottery events segmented by type.",
			}, []string{"type"}),
			tickets:  counter("tickets_sold_total", "Tickets allocated across all lotteries."),
			fees:     counter("fees_total", "Platform fees routed to fee recipients, in smallest token units."),
			proceeds: counter("proceeds_total", "Net proceeds escrowed in proceeds vaults, in smallest token units."),
			prizes:   counter("prizes_paid_total", "Prize tokens paid to winners, in smallest token units."),
		}
		prometheus.MustRegister(
			lotteryRegistry.events,
			lotteryRegistry.tickets,
			lotteryRegistry.fees,
			lotteryRegistry.proceeds,
			lotteryRegistry.prizes,
		)
	})
	return lotteryRegistry
}

func attrFloat(attrs map[string]string, key string) float64 {
	v, err := strconv.ParseUint(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return float64(v)
}

// Record updates the counters for one emitted event.
func (m *lotteryMetrics) Record(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	attrs := payload.Event().Attributes
	switch evt.EventType() {
	case lottery.EventTypeTicketsPurchased:
		m.tickets.Add(attrFloat(attrs, "count"))
		m.fees.Add(attrFloat(attrs, "fee"))
		m.proceeds.Add(attrFloat(attrs, "proceeds"))
	case lottery.EventTypePrizeClaimed:
		m.prizes.Add(attrFloat(attrs, "amount"))
	}
}

// EventSink logs every lottery event and feeds the lottery metrics.
type EventSink struct {
	Logger  *slog.Logger
	Metrics *lotteryMetrics
}

// NewEventSink wires the default logger and the global lottery metrics.
func NewEventSink(logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{Logger: logger, Metrics: Lottery()}
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	s.Metrics.Record(evt)
	if s.Logger == nil {
		return
	}
	args := []any{slog.String("type", evt.EventType())}
	if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
		attrs := payload.Event().Attributes
		args = append(args, slog.String("lottery", attrs["id"]), slog.String("status", attrs["status"]))
	}
	s.Logger.Debug("lottery event", args...)
}
