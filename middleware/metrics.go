package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rpccore/message"
)

// Metrics holds the collectors recorded by the Metrics middleware.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors under namespace and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls handled, by method and outcome code (0 for success).",
		}, []string{"method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent handling a call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if err := reg.Register(m.Calls); err != nil {
		return nil, err
	}
	if err := reg.Register(m.Duration); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records one observation per call.
func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			resp := next(ctx, req)
			m.Duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

			code := "0"
			if resp != nil && resp.Error != nil {
				code = strconv.FormatInt(int64(resp.Error.Code), 10)
			}
			m.Calls.WithLabelValues(req.Method, code).Inc()
			return resp
		}
	}
}
