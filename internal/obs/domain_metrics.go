package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingTierTotal counts priced checkouts by the notes tier that applied.
	PricingTierTotal *prometheus.CounterVec
	// CheckoutIntentTotal counts payment intent creation attempts.
	CheckoutIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// SearchRequestsTotal counts AI search lookups by outcome.
	SearchRequestsTotal *prometheus.CounterVec
	// UnitsSoldTotal counts note units delivered through completed checkouts.
	UnitsSoldTotal prometheus.Counter
	// EmailDeliveriesTotal counts purchase email delivery attempts.
	EmailDeliveriesTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingTierTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_tier_total",
			Help:      "Count of checkouts priced per notes tier.",
		}, []string{"tier"}))
		CheckoutIntentTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_intent_total",
			Help:      "Count of payment intent creation outcomes.",
		}, []string{"provider", "result"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		SearchRequestsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Count of AI search lookups by outcome.",
		}, []string{"result"}))
		UnitsSoldTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Number of note units sold through completed checkouts.",
		}))
		EmailDeliveriesTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_deliveries_total",
			Help:      "Count of purchase email delivery attempts by outcome.",
		}, []string{"result"}))
	})
}

// IncCounter increments the labelled child of vec when domain metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
