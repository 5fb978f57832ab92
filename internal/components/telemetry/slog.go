package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InitSlog replaces the default slog logger with a text handler writing to stderr,
// debug controls whether ReportDebug output is shown.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// SlogAPI implements API using the log/slog package, counts are also recorded
// as gauges on the global otel meter provider.
type SlogAPI struct {
	gauges *sync.Map
}

func NewSlogAPI() SlogAPI {
	return SlogAPI{gauges: &sync.Map{}}
}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	slog.Debug(message, remainingPairs...)
}

var meter = otel.Meter("fandomvis")

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)

	if s.gauges == nil {
		return
	}
	gauge, ok := s.gauges.Load(id)
	if !ok {
		created, err := meter.Int64Gauge(id)
		if err != nil {
			slog.Warn("create gauge", "id", id, "err", err)
			return
		}
		gauge, _ = s.gauges.LoadOrStore(id, created)
	}
	gauge.(metric.Int64Gauge).Record(context.Background(), count)
}
