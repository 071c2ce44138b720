package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamload_records_consumed_total",
		Help: "Records drained from the group channel and appended to the pipe.",
	})

	BytesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamload_bytes_consumed_total",
		Help: "Payload bytes appended to the pipe.",
	})

	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamload_attempts_total",
		Help: "Ingestion attempts by terminal status.",
	}, []string{"status"})

	ChannelPushBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamload_channel_push_blocked_seconds_total",
		Help: "Cumulative time producers spent blocked on a full channel.",
	})

	ChannelPopBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamload_channel_pop_blocked_seconds_total",
		Help: "Cumulative time the drain loop spent blocked on an empty channel.",
	})

	ChannelDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamload_channel_depth",
		Help: "Records currently buffered in the group channel.",
	})
)

// ObserveChannelWait folds one attempt's channel blocking totals into the
// exported counters.
func ObserveChannelWait(push, pop time.Duration) {
	ChannelPushBlocked.Add(push.Seconds())
	ChannelPopBlocked.Add(pop.Seconds())
}

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}
