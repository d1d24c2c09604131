package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveScanAndRefit(t *testing.T) {
	RegisterWith(prometheus.NewRegistry())

	ObserveScan(1.5, 2, 5, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(ScanAssets.WithLabelValues("published")))
	assert.Equal(t, 5.0, testutil.ToFloat64(ScanAssets.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ScanAssets.WithLabelValues("failed")))

	before := testutil.ToFloat64(CalibrationRefits.WithLabelValues("ok"))
	ObserveRefit(true, 8)
	ObserveRefit(false, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(CalibrationRefits.WithLabelValues("ok")))
	assert.Equal(t, 8.0, testutil.ToFloat64(CalibrationBins))
}
