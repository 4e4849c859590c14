package views

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-dexstate/internal/log"
)

func priceServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestPricePoller_Fetch(t *testing.T) {
	srv, _ := priceServer(t, `{"reef":{"usd":0.00123}}`, http.StatusOK)
	p := NewPricePoller(srv.URL, "reef.usd", time.Minute, log.Nop())

	price, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.00123")), price.String())
}

func TestPricePoller_FetchMissingPath(t *testing.T) {
	srv, _ := priceServer(t, `{"other":{"usd":1}}`, http.StatusOK)
	p := NewPricePoller(srv.URL, "reef.usd", time.Minute, log.Nop())

	_, err := p.Fetch(context.Background())
	assert.Error(t, err)
}

func TestPricePoller_FetchBadStatus(t *testing.T) {
	srv, _ := priceServer(t, `rate limited`, http.StatusTooManyRequests)
	p := NewPricePoller(srv.URL, "reef.usd", time.Minute, log.Nop())

	_, err := p.Fetch(context.Background())
	assert.Error(t, err)
}

func TestPricePoller_RunPublishesImmediately(t *testing.T) {
	srv, hits := priceServer(t, `{"reef":{"usd":"2.5"}}`, http.StatusOK)
	p := NewPricePoller(srv.URL, "reef.usd", time.Hour, log.Nop())
	sub := p.Prices().Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case v := <-sub.C():
		assert.True(t, v.Equal(decimal.RequireFromString("2.5")))
	case <-time.After(2 * time.Second):
		t.Fatal("no price published")
	}
	assert.Equal(t, int32(1), hits.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.True(t, p.Prices().Closed())
}
