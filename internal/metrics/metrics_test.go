package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Transaction("resolve")
	r.Transaction("resolve")
	r.Transaction("initialize")
	r.Failure("registration_failure")
	r.Bound("instantiated")
	r.Run("deploy", "failed")
	r.Phase("resolve", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transactions.WithLabelValues("resolve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transactions.WithLabelValues("initialize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("registration_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.components.WithLabelValues("instantiated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("deploy", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.phaseDuration))
	assert.Greater(t, testutil.ToFloat64(r.lastRun), 0.0)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Transaction("resolve")
		r.Phase("resolve", time.Second)
		r.Failure("x")
		r.Bound("manifest")
		r.Run("deploy", "completed")
	})
	assert.NotNil(t, r.Gatherer())
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Transaction("register")

	path := filepath.Join(t.TempDir(), "rollupctl.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rollupctl_transactions_total{phase="register"} 1`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	r := New()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
