package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.UpdateContext(true)
	c.SignerFetch("native_balance", nil)
	c.SignersEmitted()
	c.Subscription("subscribe", 2)
	c.MetadataFetch(errors.New("boom"))
	c.MetadataCacheSize(3)
	c.IndexerMessage("next")
	assert.Nil(t, c.Registry())
}

func TestCollector_Counts(t *testing.T) {
	c := NewCollector("test")
	c.SignerFetch("native_balance", nil)
	c.SignerFetch("native_balance", errors.New("timeout"))
	c.SignerFetch("native_balance", nil)
	c.Subscription("subscribe", 3)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["test_signers_fetches_total,native_balance,ok"])
	assert.Equal(t, 1.0, values["test_signers_fetches_total,native_balance,error"])
	assert.Equal(t, 3.0, values["test_balances_watched_addresses"])
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("dexstate")
	c.SignersEmitted()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "dexstate_signers_emissions_total 1"))
}
