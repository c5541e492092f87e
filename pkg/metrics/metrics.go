// Package metrics exposes engine results as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Publisher counts trades and statuses. It registers on its own registry so
// several engines can run in one process.
type Publisher struct {
	registry *prometheus.Registry

	Trades    *prometheus.CounterVec
	Volume    *prometheus.CounterVec
	Statuses  *prometheus.CounterVec
	Resting   *prometheus.GaugeVec
	Finalized prometheus.Gauge
	Failures  *prometheus.CounterVec
}

func NewPublisher() *Publisher {
	p := &Publisher{
		registry: prometheus.NewRegistry(),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Executed trades.",
		}, []string{"symbol"}),
		Volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trade_volume_total",
			Help: "Executed quantity.",
		}, []string{"symbol"}),
		Statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_statuses_total",
			Help: "Published status messages by kind.",
		}, []string{"kind"}),
		Resting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_resting_orders",
			Help: "Orders resting in the final book snapshot.",
		}, []string{"symbol", "side"}),
		Finalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_finalized",
			Help: "1 once the engine published its final snapshots.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_publish_failures_total",
			Help: "Results an external sink failed to accept.",
		}, []string{"sink"}),
	}
	p.registry.MustRegister(p.Trades, p.Volume, p.Statuses, p.Resting, p.Finalized, p.Failures)
	return p
}

func (p *Publisher) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *Publisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Publisher) OnTrade(t model.Trade) {
	p.Trades.WithLabelValues(t.Symbol).Inc()
	p.Volume.WithLabelValues(t.Symbol).Add(float64(t.Quantity))
}

func (p *Publisher) OnStatus(s model.Status) {
	p.Statuses.WithLabelValues(s.Kind.String()).Inc()
}

func (p *Publisher) OnSnapshot(s model.BookSnapshot) {
	p.Resting.WithLabelValues(s.Symbol, model.Buy.String()).Set(float64(len(s.Bids)))
	p.Resting.WithLabelValues(s.Symbol, model.Sell.String()).Set(float64(len(s.Asks)))
}

func (p *Publisher) OnShutdown() {
	p.Finalized.Set(1)
}

// PublishFailed counts one result the named sink did not accept.
func (p *Publisher) PublishFailed(sink string) {
	p.Failures.WithLabelValues(sink).Inc()
}

var _ model.Publisher = (*Publisher)(nil)
