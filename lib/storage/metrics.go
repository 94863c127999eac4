package storage

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	rollbacks      = metrics.NewCounter("skv_rollbacks_total")
	lazyInitReset  = metrics.NewCounter(`skv_lazy_init_total{result="reset"}`)
	lazyInitReuse  = metrics.NewCounter(`skv_lazy_init_total{result="reuse"}`)
	sweepDestroyed = metrics.NewCounter("skv_sweep_destroyed_total")
)

// countOp increments the operation counter for op
func countOp(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`skv_ops_total{op=%q}`, op)).Inc()
}
