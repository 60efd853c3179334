package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorygrid.ai/internal/sim/factory"
)

func TestCollector_ObserveTick(t *testing.T) {
	c := New(Sources{DroppedTicks: func() uint64 { return 4 }})
	c.ObserveTick(factory.TickSummary{
		Tick:     1,
		Duration: time.Millisecond,
		Cycles:   map[string]int{"square": 2},
		Exported: 1,
		FellOff:  3,
		Cells:    5,
		InFlight: 2,
	})
	c.ObserveTick(factory.TickSummary{Tick: 2, Cycles: map[string]int{"square": 1}, Cells: 6})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticksTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("square")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.packagesTotal.WithLabelValues("exported")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.packagesTotal.WithLabelValues("fell_off")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.cells))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.ticksDropped))
}

func TestCollector_Handler(t *testing.T) {
	c := New(Sources{IndexDrops: func() (uint64, uint64) { return 7, 1 }})
	c.ObserveEdit("PLACE", "")
	c.ObserveEdit("PLACE", "E_OCCUPIED")
	c.SetObservers(2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(b)

	for _, want := range []string{
		`factorygrid_observer_edits_total{action="PLACE",code="OK"} 1`,
		`factorygrid_observer_edits_total{action="PLACE",code="E_OCCUPIED"} 1`,
		`factorygrid_observer_sessions 2`,
		`factorygrid_index_dropped_total{kind="tick"} 7`,
		`factorygrid_index_dropped_total{kind="audit"} 1`,
		`factorygrid_engine_ticks_dropped_total 0`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %q in:\n%s", want, body)
	}
}
