package views

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
)

// PricePoller fetches the native asset's USD price from a
// CoinGecko-compatible endpoint on a fixed interval.
type PricePoller struct {
	url      string
	path     string
	interval time.Duration
	http     *http.Client
	logger   zerolog.Logger

	out *stream.Feed[decimal.Decimal]
}

// NewPricePoller creates a poller. path is the gjson path of the price in
// the response body, e.g. "reef.usd".
func NewPricePoller(url, path string, interval time.Duration, logger zerolog.Logger) *PricePoller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PricePoller{
		url:      url,
		path:     path,
		interval: interval,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		out:      stream.NewFeed[decimal.Decimal](),
	}
}

// Prices returns the price feed.
func (p *PricePoller) Prices() *stream.Feed[decimal.Decimal] {
	return p.out
}

// Fetch retrieves the current price once.
func (p *PricePoller) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price endpoint returned %s", resp.Status)
	}

	v := gjson.GetBytes(body, p.path)
	if !v.Exists() {
		return decimal.Zero, fmt.Errorf("price path %q missing in response", p.path)
	}
	price, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price: %w", err)
	}
	return price, nil
}

// Run fetches immediately and then on every interval until ctx is
// cancelled. Failed fetches are logged and the last price is kept.
func (p *PricePoller) Run(ctx context.Context) error {
	defer p.out.Close()

	poll := func() {
		price, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("Price fetch failed")
			}
			return
		}
		p.out.Send(price)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), poll); err != nil {
		return fmt.Errorf("schedule price polling: %w", err)
	}

	poll()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
