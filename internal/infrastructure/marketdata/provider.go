package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	defaultRefresh   = 5 * time.Minute
	defaultCacheSize = 64
)

// tickerFile is the on-disk layout of <dir>/<TICKER>.json.
type tickerFile struct {
	Ticker       string              `json:"ticker"`
	Fundamentals domain.Fundamentals `json:"fundamentals"`
	Bars         []domain.PriceBar   `json:"bars"`
}

type cachedFile struct {
	data     *tickerFile
	loadedAt time.Time
}

// FileProvider serves market data from JSON files, one per ticker. Every
// method returns nil when the ticker is unknown or its file is unreadable.
type FileProvider struct {
	dir     string
	refresh time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache *lru.Cache[string, cachedFile]
}

func NewFileProvider(dir string, refresh time.Duration) (*FileProvider, error) {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	cache, err := lru.New[string, cachedFile](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create market data cache: %w", err)
	}
	return &FileProvider{
		dir:     dir,
		refresh: refresh,
		now:     time.Now,
		cache:   cache,
	}, nil
}

func (p *FileProvider) Price(ctx context.Context, ticker string) *domain.PriceSnapshot {
	data := p.load(ctx, ticker)
	if data == nil || len(data.Bars) == 0 {
		return nil
	}
	last := data.Bars[len(data.Bars)-1]
	snap := &domain.PriceSnapshot{
		Ticker: data.Ticker,
		Price:  last.Close,
		Volume: last.Volume,
		AsOf:   last.Date,
	}
	if len(data.Bars) > 1 {
		prev := data.Bars[len(data.Bars)-2].Close
		snap.PreviousClose = prev
		snap.Change = last.Close - prev
		if prev != 0 {
			snap.ChangePercent = snap.Change / prev * 100
		}
	}
	return snap
}

func (p *FileProvider) Fundamentals(ctx context.Context, ticker string) *domain.Fundamentals {
	data := p.load(ctx, ticker)
	if data == nil {
		return nil
	}
	out := data.Fundamentals
	out.Ticker = data.Ticker
	return &out
}

func (p *FileProvider) History(ctx context.Context, ticker string, days int) []domain.PriceBar {
	data := p.load(ctx, ticker)
	if data == nil || len(data.Bars) == 0 {
		return nil
	}
	bars := data.Bars
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return append([]domain.PriceBar(nil), bars...)
}

func (p *FileProvider) Indicators(ctx context.Context, ticker string) *domain.TechnicalIndicators {
	data := p.load(ctx, ticker)
	if data == nil || len(data.Bars) == 0 {
		return nil
	}
	return ComputeIndicators(data.Ticker, data.Bars)
}

// ComputeIndicators derives the indicator set from chronologically ordered
// bars. Indicators lacking enough history are left at zero.
func ComputeIndicators(ticker string, bars []domain.PriceBar) *domain.TechnicalIndicators {
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
		}
	}
	out := &domain.TechnicalIndicators{Ticker: ticker, BarsUsed: len(closes)}
	out.SMA50, _ = SMA(closes, 50)
	out.SMA200, _ = SMA(closes, 200)
	out.EMA12, _ = EMA(closes, 12)
	out.RSI14, _ = RSI(closes, 14)
	out.MACD, _ = MACD(closes)
	out.Volatility, _ = Volatility(closes)
	out.GoldenCross = GoldenCross(closes)
	return out
}

func (p *FileProvider) load(ctx context.Context, ticker string) *tickerFile {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || strings.ContainsAny(ticker, `/\.`) || ctx.Err() != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if cached, ok := p.cache.Get(ticker); ok && now.Sub(cached.loadedAt) < p.refresh {
		return cached.data
	}

	data, err := readTickerFile(filepath.Join(p.dir, ticker+".json"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("market_data_unavailable", "ticker", ticker, "error", err)
		}
		p.cache.Remove(ticker)
		return nil
	}
	if data.Ticker == "" {
		data.Ticker = ticker
	}
	p.cache.Add(ticker, cachedFile{data: data, loadedAt: now})
	return data
}

func readTickerFile(path string) (*tickerFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data tickerFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	sort.SliceStable(data.Bars, func(i, j int) bool {
		return data.Bars[i].Date.Before(data.Bars[j].Date)
	})
	return &data, nil
}
