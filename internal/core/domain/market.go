package domain

import "time"

type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

type PriceSnapshot struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	AsOf          time.Time `json:"as_of"`
}

type Fundamentals struct {
	Ticker        string  `json:"ticker"`
	Name          string  `json:"name,omitempty"`
	Sector        string  `json:"sector,omitempty"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	EPS           float64 `json:"eps,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"`
	Beta          float64 `json:"beta,omitempty"`
}

type TechnicalIndicators struct {
	Ticker      string  `json:"ticker"`
	BarsUsed    int     `json:"bars_used"`
	SMA50       float64 `json:"sma_50,omitempty"`
	SMA200      float64 `json:"sma_200,omitempty"`
	EMA12       float64 `json:"ema_12,omitempty"`
	RSI14       float64 `json:"rsi_14,omitempty"`
	MACD        float64 `json:"macd,omitempty"`
	Volatility  float64 `json:"volatility,omitempty"`
	GoldenCross bool    `json:"golden_cross"`
}
