package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

func TestDefaultCatalogCounts(t *testing.T) {
	c := Default()

	assert.Len(t, c.ByMarket(domain.MarketStocks), 30)
	assert.Len(t, c.ByMarket(domain.MarketCrypto), 30)
	assert.Len(t, c.ByMarket(domain.MarketCommodities), 10)
	assert.Equal(t, 70, c.Len())
	assert.Len(t, c.Symbols(), 70)
}

func TestLookup(t *testing.T) {
	c := Default()

	inst, ok := c.Lookup("binance:btcusdt")
	require.True(t, ok)
	assert.Equal(t, "BINANCE:BTCUSDT", inst.Symbol)
	assert.Equal(t, domain.MarketCrypto, inst.Market)

	_, ok = c.Lookup("NASDAQ:AAPL")
	assert.False(t, ok)
}

func TestPickCoversWholeUniverse(t *testing.T) {
	c := Default()

	first := c.Pick(func(n int) int { return 0 })
	last := c.Pick(func(n int) int { return n - 1 })

	assert.Equal(t, "BIST:THYAO", first.Symbol)
	assert.Equal(t, "NYMEX:ZW1!", last.Symbol)
	assert.Equal(t, domain.MarketCommodities, last.Market)
}
