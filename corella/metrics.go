package corella

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"i4.energy/across/corella/at"
)

// Exchange outcomes recorded by Metrics.
const (
	OutcomeOK             = "ok"
	OutcomeFailure        = "failure"
	OutcomeProtocolError  = "protocol_error"
	OutcomeTimeout        = "timeout"
	OutcomeTransportError = "transport_error"
)

// Metrics records exchange outcomes and latency. It implements
// prometheus.Collector; register it with the registry of your choice.
// A nil *Metrics records nothing.
type Metrics struct {
	Exchanges *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	Connected prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corella_exchanges_total",
				Help: "Command exchanges with the module by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corella_exchange_duration_seconds",
				Help:    "Time from writing a command to parsing its response.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corella_connected",
			Help: "1 while the connection to the module is open.",
		}),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Exchanges.Describe(ch)
	m.Duration.Describe(ch)
	m.Connected.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Exchanges.Collect(ch)
	m.Duration.Collect(ch)
	m.Connected.Collect(ch)
}

var _ prometheus.Collector = (*Metrics)(nil)

func (m *Metrics) observe(kind at.Kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(kind.String(), outcome).Inc()
	m.Duration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

func (m *Metrics) setConnected(open bool) {
	if m == nil {
		return
	}
	if open {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// outcomeOf maps the result of an exchange onto an Outcome label.
func outcomeOf(res at.Result, err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrTransport):
		return OutcomeTransportError
	case err != nil:
		return OutcomeProtocolError
	case !res.Succeeded():
		return OutcomeFailure
	default:
		return OutcomeOK
	}
}
