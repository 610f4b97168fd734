package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describeAll(c prometheus.Collector) []*prometheus.Desc {
	ch := make(chan *prometheus.Desc, 20)
	c.Describe(ch)
	close(ch)

	var descs []*prometheus.Desc
	for d := range ch {
		descs = append(descs, d)
	}
	return descs
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "catalog")
	require.NotNil(t, c)

	var _ prometheus.Collector = c
	descs := describeAll(c)
	require.Len(t, descs, 6)

	for _, name := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_count_total",
		"db_pool_empty_acquire_count_total",
	} {
		found := false
		for _, d := range descs {
			if strings.Contains(d.String(), `"`+name+`"`) {
				found = true
			}
		}
		assert.True(t, found, "expected descriptor %q", name)
	}
}
