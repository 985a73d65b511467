package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	MessagesInserted.WithLabelValues("inline").Inc()
	MessagesDeleted.WithLabelValues("client").Inc()
	MessagesPruned.WithLabelValues("store_max").Inc()
	StoreBytes.Set(42)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"msgstore_messages_inserted_total",
		"msgstore_messages_deleted_total",
		"msgstore_messages_pruned_total",
		"msgstore_store_bytes",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
	assert.Equal(t, float64(42), testutil.ToFloat64(StoreBytes))
}
