package httpapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics agrupa os contadores da API; o main registra com prometheus.MustRegister
type Metrics struct {
	Writes        *prometheus.CounterVec
	Published     *prometheus.CounterVec
	PublishErrors *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Writes:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_writes_total", Help: "escritas no ledger por coleção e resultado"}, []string{"collection", "result"}),
		Published:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_events_published_total", Help: "eventos publicados no change bus"}, []string{"event"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_publish_errors_total", Help: "falhas de publicação no change bus"}, []string{"event"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Writes, m.Published, m.PublishErrors}
}
