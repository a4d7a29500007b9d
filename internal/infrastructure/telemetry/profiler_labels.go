package telemetry

import (
	"context"
	"maps"
	"slices"

	"github.com/grafana/pyroscope-go"
)

const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelStrategy  = "strategy"
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
)

// MaxLabelValueLength truncates label values
const MaxLabelValueLength = 64

// entityLabels identify a single record and would explode the number of
// profile series
var entityLabels = []string{
	"contact_id",
	"payment_id",
	"invoice_id",
	"idempotency_key",
	"request_id",
	"trace_id",
}

// WithProfilingLabels runs fn with pprof labels attached to its goroutine
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// PaymentLabels labels one payment operation run with strategy
func PaymentLabels(operation, strategy string) map[string]string {
	return map[string]string{
		ProfilingLabelOperation: operation,
		ProfilingLabelStrategy:  strategy,
	}
}

// sanitizeLabels flattens labels into key/value pairs sorted by key,
// dropping empty and entity labels
func sanitizeLabels(labels map[string]string) []string {
	var pairs []string
	for _, key := range slices.Sorted(maps.Keys(labels)) {
		value := labels[key]
		if key == "" || value == "" || slices.Contains(entityLabels, key) {
			continue
		}
		pairs = append(pairs, key, value[:min(len(value), MaxLabelValueLength)])
	}
	return pairs
}
