// Package catalog holds the static universe of tradable instruments,
// partitioned by market.
package catalog

import (
	"strings"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

var stocks = []domain.Instrument{
	{Symbol: "BIST:THYAO", Label: "Türk Hava Yolları"},
	{Symbol: "BIST:GARAN", Label: "Garanti Bankası"},
	{Symbol: "BIST:ASELS", Label: "Aselsan"},
	{Symbol: "BIST:KRDMD", Label: "Kardemir"},
	{Symbol: "BIST:EREGL", Label: "Ereğli Demir Çelik"},
	{Symbol: "BIST:AKBNK", Label: "Akbank"},
	{Symbol: "BIST:YKBNK", Label: "Yapı Kredi"},
	{Symbol: "BIST:HALKB", Label: "Halkbank"},
	{Symbol: "BIST:VAKBN", Label: "Vakıfbank"},
	{Symbol: "BIST:SAHOL", Label: "Sabancı Holding"},
	{Symbol: "BIST:KCHOL", Label: "Koç Holding"},
	{Symbol: "BIST:PGSUS", Label: "Pegasus"},
	{Symbol: "BIST:BIMAS", Label: "BİM"},
	{Symbol: "BIST:TUPRS", Label: "Tüpraş"},
	{Symbol: "BIST:SISE", Label: "Şişe Cam"},
	{Symbol: "BIST:TAVHL", Label: "TAV Holding"},
	{Symbol: "BIST:TKFEN", Label: "Tekfen Holding"},
	{Symbol: "BIST:TOASO", Label: "Tofaş Oto"},
	{Symbol: "BIST:TCELL", Label: "Turkcell"},
	{Symbol: "BIST:TTKOM", Label: "Türk Telekom"},
	{Symbol: "BIST:DOHOL", Label: "Doğan Holding"},
	{Symbol: "BIST:EKGYO", Label: "Emlak Konut"},
	{Symbol: "BIST:FROTO", Label: "Ford Otosan"},
	{Symbol: "BIST:KOZAL", Label: "Koza Altın"},
	{Symbol: "BIST:KOZAA", Label: "Koza Madencilik"},
	{Symbol: "BIST:PETKM", Label: "Petkim"},
	{Symbol: "BIST:SODA", Label: "Soda Sanayii"},
	{Symbol: "BIST:VESTL", Label: "Vestel"},
	{Symbol: "BIST:ISDMR", Label: "İskenderun Demir"},
	{Symbol: "BIST:OYAKC", Label: "OYAK Çimento"},
}

var crypto = []domain.Instrument{
	{Symbol: "BINANCE:BTCUSDT", Label: "Bitcoin"},
	{Symbol: "BINANCE:ETHUSDT", Label: "Ethereum"},
	{Symbol: "BINANCE:BNBUSDT", Label: "Binance Coin"},
	{Symbol: "BINANCE:XRPUSDT", Label: "Ripple"},
	{Symbol: "BINANCE:ADAUSDT", Label: "Cardano"},
	{Symbol: "BINANCE:DOGEUSDT", Label: "Dogecoin"},
	{Symbol: "BINANCE:SOLUSDT", Label: "Solana"},
	{Symbol: "BINANCE:DOTUSDT", Label: "Polkadot"},
	{Symbol: "BINANCE:MATICUSDT", Label: "Polygon"},
	{Symbol: "BINANCE:LTCUSDT", Label: "Litecoin"},
	{Symbol: "BINANCE:AVAXUSDT", Label: "Avalanche"},
	{Symbol: "BINANCE:LINKUSDT", Label: "Chainlink"},
	{Symbol: "BINANCE:UNIUSDT", Label: "Uniswap"},
	{Symbol: "BINANCE:ATOMUSDT", Label: "Cosmos"},
	{Symbol: "BINANCE:ETCUSDT", Label: "Ethereum Classic"},
	{Symbol: "BINANCE:XLMUSDT", Label: "Stellar"},
	{Symbol: "BINANCE:VETUSDT", Label: "VeChain"},
	{Symbol: "BINANCE:ICPUSDT", Label: "Internet Computer"},
	{Symbol: "BINANCE:FILUSDT", Label: "Filecoin"},
	{Symbol: "BINANCE:AAVEUSDT", Label: "Aave"},
	{Symbol: "BINANCE:ALGOUSDT", Label: "Algorand"},
	{Symbol: "BINANCE:XTZUSDT", Label: "Tezos"},
	{Symbol: "BINANCE:AXSUSDT", Label: "Axie Infinity"},
	{Symbol: "BINANCE:SANDUSDT", Label: "The Sandbox"},
	{Symbol: "BINANCE:MANAUSDT", Label: "Decentraland"},
	{Symbol: "BINANCE:THETAUSDT", Label: "Theta Network"},
	{Symbol: "BINANCE:FTMUSDT", Label: "Fantom"},
	{Symbol: "BINANCE:HBARUSDT", Label: "Hedera"},
	{Symbol: "BINANCE:NEARUSDT", Label: "NEAR Protocol"},
	{Symbol: "BINANCE:RUNEUSDT", Label: "THORChain"},
}

var commodities = []domain.Instrument{
	{Symbol: "TVC:GOLD", Label: "Altın"},
	{Symbol: "TVC:SILVER", Label: "Gümüş"},
	{Symbol: "NYMEX:CL1!", Label: "Ham Petrol"},
	{Symbol: "TVC:USOIL", Label: "Brent Petrol"},
	{Symbol: "TVC:COPPER", Label: "Bakır"},
	{Symbol: "TVC:PLATINUM", Label: "Platin"},
	{Symbol: "TVC:PALLADIUM", Label: "Paladyum"},
	{Symbol: "NYMEX:NG1!", Label: "Doğal Gaz"},
	{Symbol: "NYMEX:ZC1!", Label: "Mısır"},
	{Symbol: "NYMEX:ZW1!", Label: "Buğday"},
}

// Catalog is an immutable instrument universe. It is safe for concurrent use.
type Catalog struct {
	all      []domain.Instrument
	byMarket map[domain.Market][]domain.Instrument
	bySymbol map[string]domain.Instrument
}

// New builds a Catalog from instruments grouped by market. Instruments keep
// the order given.
func New(groups map[domain.Market][]domain.Instrument) *Catalog {
	c := &Catalog{
		byMarket: make(map[domain.Market][]domain.Instrument, len(groups)),
		bySymbol: make(map[string]domain.Instrument),
	}
	for _, m := range domain.Markets {
		for _, inst := range groups[m] {
			inst.Market = m
			c.all = append(c.all, inst)
			c.byMarket[m] = append(c.byMarket[m], inst)
			c.bySymbol[strings.ToUpper(inst.Symbol)] = inst
		}
	}
	return c
}

// Default returns the built-in universe: 30 BIST equities, 30 USDT crypto
// pairs and 10 commodities.
func Default() *Catalog {
	return New(map[domain.Market][]domain.Instrument{
		domain.MarketStocks:      stocks,
		domain.MarketCrypto:      crypto,
		domain.MarketCommodities: commodities,
	})
}

// All returns every instrument. The caller must not modify the slice.
func (c *Catalog) All() []domain.Instrument {
	return c.all
}

// ByMarket returns the instruments of one market.
func (c *Catalog) ByMarket(m domain.Market) []domain.Instrument {
	return c.byMarket[m]
}

// Symbols returns every symbol in catalog order.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.all))
	for i, inst := range c.all {
		out[i] = inst.Symbol
	}
	return out
}

// Lookup finds an instrument by symbol, case-insensitively.
func (c *Catalog) Lookup(symbol string) (domain.Instrument, bool) {
	inst, ok := c.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return inst, ok
}

// Pick returns the instrument at a uniformly drawn index. intn must return a
// value in [0, n).
func (c *Catalog) Pick(intn func(n int) int) domain.Instrument {
	return c.all[intn(len(c.all))]
}

// Len is the number of instruments.
func (c *Catalog) Len() int {
	return len(c.all)
}
