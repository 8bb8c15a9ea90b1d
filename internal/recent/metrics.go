package recent

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the cache swallows. A nil *Metrics records nothing.
type Metrics struct {
	viewsRecorded prometheus.Counter
	invalidInput  prometheus.Counter
	corruptState  *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
}

// NewMetrics creates the cache metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		viewsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recent",
			Name:      "views_recorded_total",
			Help:      "Total number of product views written to the recently viewed list",
		}),
		invalidInput: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recent",
			Name:      "invalid_input_total",
			Help:      "Total number of record calls ignored because the product was invalid",
		}),
		corruptState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent",
			Name:      "corrupt_state_total",
			Help:      "Total number of stored lists that failed to parse",
		}, []string{"path"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent",
			Name:      "store_errors_total",
			Help:      "Total number of store operations that failed",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{m.viewsRecorded, m.invalidInput, m.corruptState, m.storeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) viewRecorded() {
	if m != nil {
		m.viewsRecorded.Inc()
	}
}

func (m *Metrics) invalid() {
	if m != nil {
		m.invalidInput.Inc()
	}
}

func (m *Metrics) corrupt(path string) {
	if m != nil {
		m.corruptState.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) storeError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}
