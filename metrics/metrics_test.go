package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, RecordsProcessed)
	assert.NotNil(t, FindingsGenerated)
	assert.NotNil(t, FilesProcessed)
	assert.NotNil(t, FileProcessingDuration)
	assert.NotNil(t, ActiveWorkers)
	assert.NotNil(t, RulesLoaded)
	assert.NotNil(t, RulesSuppressed)
	assert.NotNil(t, RuleDefinitionsSkipped)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RecordsProcessed.WithLabelValues("clean"))
	RecordsProcessed.WithLabelValues("clean").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(RecordsProcessed.WithLabelValues("clean")))

	RulesSuppressed.Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(RulesSuppressed))
}

func TestWriteTextfile(t *testing.T) {
	FilesProcessed.WithLabelValues(FileStatusOK).Inc()

	path := filepath.Join(t.TempDir(), "hayabusa.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hayabusa_files_processed_total")

	err = WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
