package metric

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// CounterValues gathers the counter family name, without the namespace
// prefix, and returns each series' value keyed by its label value. An
// unlabelled counter is keyed by "". A family with no samples yet yields an
// empty map.
func (r *Registry) CounterValues(name, label string) (map[string]float64, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	full := namespace + "_" + name
	values := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != full {
			continue
		}
		if mf.GetType() != dto.MetricType_COUNTER {
			return nil, fmt.Errorf("metric %s is a %s, not a counter", full, mf.GetType())
		}
		for _, m := range mf.GetMetric() {
			values[labelValue(m, label)] += m.GetCounter().GetValue()
		}
	}
	return values, nil
}

func labelValue(m *dto.Metric, label string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == label {
			return lp.GetValue()
		}
	}
	return ""
}
