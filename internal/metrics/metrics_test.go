package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(FilesProcessedTotal.WithLabelValues("failed", "missing_key"))
	FilesProcessedTotal.WithLabelValues("failed", "missing_key").Inc()
	after := testutil.ToFloat64(FilesProcessedTotal.WithLabelValues("failed", "missing_key"))
	assert.Equal(t, before+1, after)

	rows := testutil.ToFloat64(RowsParsedTotal)
	RowsParsedTotal.Add(3)
	assert.Equal(t, rows+3, testutil.ToFloat64(RowsParsedTotal))
}

func TestHandlerExposesInstruments(t *testing.T) {
	FlightsSummarizedTotal.Add(0)
	ConversionDuration.WithLabelValues("ok").Observe(0.2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "dronetrace_flights_summarized_total")
	assert.Contains(t, string(body), "dronetrace_conversion_duration_seconds_bucket")
}
