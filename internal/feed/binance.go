package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

// Binance error codes that indicate request-weight throttling.
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
)

// BinanceOptions parameterise the REST client.
type BinanceOptions struct {
	APIKey    string
	SecretKey string
}

// Binance implements Client against the Binance spot REST API, with funding
// rates sourced from the perpetual-futures premium index.
type Binance struct {
	spot    *binance.Client
	futures *futures.Client
	logger  zerolog.Logger
}

// NewBinance constructs the feed client. Public market-data endpoints work
// with empty credentials.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	return &Binance{
		spot:    binance.NewClient(opts.APIKey, opts.SecretKey),
		futures: futures.NewClient(opts.APIKey, opts.SecretKey),
		logger:  logger.With().Str("component", "binance_feed").Logger(),
	}
}

// FetchTickers returns last price and 24h quote volume for every symbol.
func (b *Binance) FetchTickers(ctx context.Context) (map[string]Ticker, error) {
	stats, err := b.spot.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, classify("fetch tickers", err)
	}

	tickers := make(map[string]Ticker, len(stats))
	for _, s := range stats {
		price, perr := strconv.ParseFloat(s.LastPrice, 64)
		volume, verr := strconv.ParseFloat(s.QuoteVolume, 64)
		if perr != nil || verr != nil {
			continue
		}
		tickers[s.Symbol] = Ticker{Symbol: s.Symbol, Price: price, Volume: volume}
	}
	return tickers, nil
}

// FetchOrderBook returns the top depth levels for symbol. An empty side is
// rejected as ErrInvalidData.
func (b *Binance) FetchOrderBook(ctx context.Context, symbol string, depth int) (Depth, error) {
	res, err := b.spot.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return Depth{}, classify("fetch order book", err)
	}
	if len(res.Bids) == 0 || len(res.Asks) == 0 {
		return Depth{}, fmt.Errorf("%w: empty order book side for %s", ErrInvalidData, symbol)
	}

	book := Depth{
		Bids: make([]Level, 0, len(res.Bids)),
		Asks: make([]Level, 0, len(res.Asks)),
	}
	for _, bid := range res.Bids {
		price, size, err := parseLevel(bid.Price, bid.Quantity)
		if err != nil {
			return Depth{}, err
		}
		book.Bids = append(book.Bids, Level{Price: price, Size: size})
	}
	for _, ask := range res.Asks {
		price, size, err := parseLevel(ask.Price, ask.Quantity)
		if err != nil {
			return Depth{}, err
		}
		book.Asks = append(book.Asks, Level{Price: price, Size: size})
	}
	return book, nil
}

// FetchTrades returns the most recent public trades for symbol.
func (b *Binance) FetchTrades(ctx context.Context, symbol string) ([]Trade, error) {
	raw, err := b.spot.NewRecentTradesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify("fetch trades", err)
	}

	trades := make([]Trade, 0, len(raw))
	for _, t := range raw {
		price, perr := strconv.ParseFloat(t.Price, 64)
		amount, aerr := strconv.ParseFloat(t.Quantity, 64)
		if perr != nil || aerr != nil {
			continue
		}
		// Buyer-is-maker means the aggressor sold into the bid.
		side := "buy"
		if t.IsBuyerMaker {
			side = "sell"
		}
		trades = append(trades, Trade{
			Price:  price,
			Amount: amount,
			Side:   side,
			Time:   time.UnixMilli(t.Time),
		})
	}
	return trades, nil
}

// FetchFundingRate returns the latest perpetual funding rate for symbol.
func (b *Binance) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	res, err := b.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify("fetch funding rate", err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("%w: no premium index for %s", ErrInvalidData, symbol)
	}

	rate, err := strconv.ParseFloat(res[0].LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad funding rate %q for %s", ErrInvalidData, res[0].LastFundingRate, symbol)
	}
	return rate, nil
}

func parseLevel(priceStr, sizeStr string) (float64, float64, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad level price %q", ErrInvalidData, priceStr)
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad level size %q", ErrInvalidData, sizeStr)
	}
	return price, size, nil
}

// classify folds Binance throttle responses into ErrRateLimited so the retry
// wrapper can recognise them.
func classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeTooManyRequests || apiErr.Code == codeTooManyOrders {
			return fmt.Errorf("%s: %w: %s", op, ErrRateLimited, apiErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Client = (*Binance)(nil)
