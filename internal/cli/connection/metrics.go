package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricsPath is where serve exposes its metrics.
const MetricsPath = "/metrics"

// Scrape fetches the node's metric families whose name starts with prefix,
// sorted by name. The protobuf exposition format is requested.
func (c *HTTPClient) Scrape(ctx context.Context, prefix string) ([]*dto.MetricFamily, error) {
	resp, err := c.Get(ctx, MetricsPath, string(expfmt.NewFormat(expfmt.TypeProtoDelim)))
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	dec := expfmt.NewDecoder(resp.Body, expfmt.ResponseFormat(resp.Header))
	var families []*dto.MetricFamily
	for {
		mf := &dto.MetricFamily{}
		if err := dec.Decode(mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		if strings.HasPrefix(mf.GetName(), prefix) {
			families = append(families, mf)
		}
	}
	slices.SortFunc(families, func(a, b *dto.MetricFamily) int {
		return strings.Compare(a.GetName(), b.GetName())
	})
	return families, nil
}

// Sample is one series of a scraped family.
type Sample struct {
	Name   string            `json:"name" yaml:"name"`
	Type   string            `json:"type" yaml:"type"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Value  float64           `json:"value" yaml:"value"`
	// Count is the observation count of histograms and summaries.
	Count uint64 `json:"count,omitempty" yaml:"count,omitempty"`
}

// Samples flattens families into one Sample per series. Histograms and
// summaries report their sum as Value.
func Samples(families []*dto.MetricFamily) []Sample {
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Type: strings.ToLower(mf.GetType().String())}
			if len(m.GetLabel()) > 0 {
				s.Labels = make(map[string]string, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Value = m.GetHistogram().GetSampleSum()
				s.Count = m.GetHistogram().GetSampleCount()
			case dto.MetricType_SUMMARY:
				s.Value = m.GetSummary().GetSampleSum()
				s.Count = m.GetSummary().GetSampleCount()
			default:
				s.Value = m.GetUntyped().GetValue()
			}
			out = append(out, s)
		}
	}
	return out
}
