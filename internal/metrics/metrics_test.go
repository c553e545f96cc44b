package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.Request("list_pulls")
	r.Request("list_pulls")
	r.Retry("rate_limit")
	r.Unit("completed", 2*time.Second)
	r.Unit("skipped", 0)
	r.Records("commits", 5)
	r.Fallbacks(3)
	r.BotsExcluded(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("list_pulls")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.units.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.units.WithLabelValues("skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.records.WithLabelValues("commits")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.fallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.botsExcluded))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	r.Request("x")
	r.Retry("network")
	r.Unit("completed", time.Second)
	r.Records("commits", 1)
	r.Finish(time.Second, true, time.Now())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
	assert.Nil(t, r.Registry())
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Records("pull_requests", 4)
	r.Finish(90*time.Second, true, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "devexport.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `devexport_records_exported_total{kind="pull_requests"} 4`), out)
	assert.True(t, strings.Contains(out, "devexport_run_duration_seconds 90"), out)
}
