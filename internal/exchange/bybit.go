package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cryptotrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitRecvWindow = "5000"
	bybitKlineLimit = 1000

	// positionIdx в hedge-режиме
	bybitIdxLong  = 1
	bybitIdxShort = 2
)

// Коды retCode, после которых запрос имеет смысл повторить
var bybitRetryableCodes = map[int]bool{
	10000: true, // server timeout
	10006: true, // too many visits
	10016: true, // server error
}

// retCode "leverage not modified" - плечо уже установлено
const bybitLeverageNotModified = 110043

// BybitConfig - параметры подключения к Bybit v5
type BybitConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string      // пусто = mainnet
	HTTP      *HTTPClient // nil = клиент по умолчанию
}

// Bybit реализует Exchange для USDT-перпетуалов Bybit (REST v5, hedge-режим)
type Bybit struct {
	apiKey    string
	secretKey string
	baseURL   string
	http      *HTTPClient

	now func() time.Time
}

// NewBybit создает адаптер Bybit
func NewBybit(cfg BybitConfig) *Bybit {
	if cfg.BaseURL == "" {
		cfg.BaseURL = bybitBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = NewHTTPClient(DefaultHTTPClientConfig())
	}
	return &Bybit{
		apiKey:    cfg.APIKey,
		secretKey: cfg.APISecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      cfg.HTTP,
		now:       time.Now,
	}
}

// GetName реализует Exchange
func (b *Bybit) GetName() string {
	return "bybit"
}

// Close освобождает соединения
func (b *Bybit) Close() {
	b.http.Close()
}

// sign создает подпись для запроса к Bybit API v5
func (b *Bybit) sign(timestamp, payload string) string {
	message := timestamp + b.apiKey + bybitRecvWindow + payload
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// bybitEnvelope - общая часть ответов v5
type bybitEnvelope struct {
	RetCode int                 `json:"retCode"`
	RetMsg  string              `json:"retMsg"`
	Result  jsoniter.RawMessage `json:"result"`
}

// doRequest выполняет запрос и возвращает поле result
func (b *Bybit) doRequest(ctx context.Context, method, endpoint string, params map[string]interface{}, signed bool) (jsoniter.RawMessage, error) {
	var payload string
	reqURL := b.baseURL + endpoint

	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, fmt.Sprint(v))
		}
		payload = query.Encode()
		if payload != "" {
			reqURL += "?" + payload
		}
	} else if len(params) > 0 {
		body, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		payload = string(body)
	}

	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader([]byte(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, payload))
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: b.GetName(), Code: "transport", Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Exchange: b.GetName(), Code: "transport", Message: err.Error(), Original: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ExchangeError{Exchange: b.GetName(), Code: strconv.Itoa(resp.StatusCode), Message: string(raw)}
	}

	var env bybitEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ExchangeError{
			Exchange:  b.GetName(),
			Code:      strconv.Itoa(resp.StatusCode),
			Message:   "malformed response",
			Original:  err,
			Permanent: true,
		}
	}
	if env.RetCode != 0 {
		return nil, &ExchangeError{
			Exchange:  b.GetName(),
			Code:      strconv.Itoa(env.RetCode),
			Message:   env.RetMsg,
			Permanent: !bybitRetryableCodes[env.RetCode],
		}
	}
	return env.Result, nil
}

// bybitSymbol переводит BTC/USDT в BTCUSDT
func bybitSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// bybitInterval переводит таймфрейм в интервал kline Bybit
func bybitInterval(timeframe string) (string, error) {
	switch strings.ToLower(timeframe) {
	case "1m":
		return "1", nil
	case "3m":
		return "3", nil
	case "5m":
		return "5", nil
	case "15m":
		return "15", nil
	case "30m":
		return "30", nil
	case "1h":
		return "60", nil
	case "2h":
		return "120", nil
	case "4h":
		return "240", nil
	case "1d":
		return "D", nil
	case "1w":
		return "W", nil
	}
	return "", &ExchangeError{Exchange: "bybit", Code: "invalid_timeframe", Message: timeframe, Permanent: true}
}

// FetchBars реализует MarketData
//
// Bybit отдает свечи от новых к старым страницами по 1000, поэтому
// курсор end сдвигается назад, а результат разворачивается.
func (b *Bybit) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	interval, err := bybitInterval(timeframe)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var out []models.Bar
	cursor := end
	for !cursor.Before(start) {
		result, err := b.doRequest(ctx, http.MethodGet, "/v5/market/kline", map[string]interface{}{
			"category": "linear",
			"symbol":   bybitSymbol(symbol),
			"interval": interval,
			"start":    start.UnixMilli(),
			"end":      cursor.UnixMilli(),
			"limit":    bybitKlineLimit,
		}, false)
		if err != nil {
			return nil, err
		}

		var page struct {
			List [][]string `json:"list"`
		}
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, err
		}

		oldest := cursor
		added := 0
		for _, row := range page.List {
			bar, ok := bybitKlineRow(symbol, row)
			if !ok {
				continue
			}
			ms := bar.Timestamp.UnixMilli()
			if _, dup := seen[ms]; dup || bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
				continue
			}
			seen[ms] = struct{}{}
			out = append(out, bar)
			added++
			if bar.Timestamp.Before(oldest) {
				oldest = bar.Timestamp
			}
		}
		if added == 0 || len(page.List) < bybitKlineLimit {
			break
		}
		cursor = oldest.Add(-time.Millisecond)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// bybitKlineRow разбирает строку [start, open, high, low, close, volume, turnover]
func bybitKlineRow(symbol string, row []string) (models.Bar, bool) {
	if len(row) < 6 {
		return models.Bar{}, false
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Bar{}, false
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return models.Bar{}, false
		}
		vals[i] = v
	}
	return models.Bar{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(ms).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true
}

// PlaceOrder реализует Executor: рыночный IOC ордер в hedge-режиме
func (b *Bybit) PlaceOrder(ctx context.Context, symbol, side string, amount float64, reduceOnly bool) (*OrderResult, error) {
	if amount <= 0 {
		return nil, &ExchangeError{Exchange: b.GetName(), Code: "invalid_amount", Message: fmt.Sprintf("order amount must be positive, got %v", amount), Permanent: true}
	}

	bybitSide := "Buy"
	if side == SideSell {
		bybitSide = "Sell"
	}
	// buy открывает long или закрывает short
	idx := bybitIdxLong
	if (side == SideSell) != reduceOnly {
		idx = bybitIdxShort
	}

	result, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", map[string]interface{}{
		"category":    "linear",
		"symbol":      bybitSymbol(symbol),
		"side":        bybitSide,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(amount, 'f', -1, 64),
		"timeInForce": "IOC",
		"reduceOnly":  reduceOnly,
		"positionIdx": idx,
	}, true)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, err
	}

	order := &OrderResult{
		ID:           created.OrderID,
		Symbol:       symbol,
		Side:         side,
		Amount:       amount,
		FilledAmount: amount,
		ReduceOnly:   reduceOnly,
		Status:       OrderStatusFilled,
		CreatedAt:    b.now(),
	}

	// детали исполнения не критичны: ордер уже принят
	if exec, err := b.orderExecution(ctx, symbol, created.OrderID); err == nil {
		order.FilledAmount = exec.filled
		order.AvgPrice = exec.avgPrice
		order.Fee = exec.fee
		switch {
		case exec.status == "Cancelled" && exec.filled == 0:
			order.Status = OrderStatusCancelled
		case exec.status == "Rejected":
			order.Status = OrderStatusRejected
		case exec.filled < amount:
			order.Status = OrderStatusPartial
		}
	}
	return order, nil
}

type bybitExecution struct {
	filled   float64
	avgPrice float64
	fee      float64
	status   string
}

// orderExecution получает информацию об исполнении ордера
func (b *Bybit) orderExecution(ctx context.Context, symbol, orderID string) (*bybitExecution, error) {
	result, err := b.doRequest(ctx, http.MethodGet, "/v5/order/realtime", map[string]interface{}{
		"category": "linear",
		"symbol":   bybitSymbol(symbol),
		"orderId":  orderID,
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		List []struct {
			CumExecQty  string `json:"cumExecQty"`
			CumExecFee  string `json:"cumExecFee"`
			AvgPrice    string `json:"avgPrice"`
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	o := resp.List[0]
	exec := &bybitExecution{status: o.OrderStatus}
	exec.filled, _ = strconv.ParseFloat(o.CumExecQty, 64)
	exec.avgPrice, _ = strconv.ParseFloat(o.AvgPrice, 64)
	exec.fee, _ = strconv.ParseFloat(o.CumExecFee, 64)
	return exec, nil
}

// FetchPositions реализует Executor
func (b *Bybit) FetchPositions(ctx context.Context, symbol string) (*HedgePositions, error) {
	result, err := b.doRequest(ctx, http.MethodGet, "/v5/position/list", map[string]interface{}{
		"category": "linear",
		"symbol":   bybitSymbol(symbol),
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		List []struct {
			PositionIdx    int    `json:"positionIdx"`
			Side           string `json:"side"`
			Size           string `json:"size"`
			AvgPrice       string `json:"avgPrice"`
			MarkPrice      string `json:"markPrice"`
			Leverage       string `json:"leverage"`
			CreatedTime    string `json:"createdTime"`
			UpdatedTime    string `json:"updatedTime"`
			PositionStatus string `json:"positionStatus"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}

	out := &HedgePositions{}
	for _, p := range resp.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		if size <= 0 || entry <= 0 {
			continue
		}
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		lev, _ := strconv.ParseFloat(p.Leverage, 64)
		createdMs, _ := strconv.ParseInt(p.CreatedTime, 10, 64)
		updatedMs, _ := strconv.ParseInt(p.UpdatedTime, 10, 64)

		side := models.SideLong
		if p.PositionIdx == bybitIdxShort || (p.PositionIdx == 0 && p.Side == "Sell") {
			side = models.SideShort
		}

		pos, err := models.NewPosition(symbol, side, entry, size, int(lev), time.UnixMilli(createdMs).UTC())
		if err != nil {
			return nil, &ExchangeError{Exchange: b.GetName(), Code: "invalid_position", Message: err.Error(), Original: err, Permanent: true}
		}
		if mark > 0 {
			pos.MarkPrice(mark, time.UnixMilli(updatedMs).UTC())
		}
		if p.PositionStatus == "Liq" {
			_ = pos.Transition(models.PositionLiquidated, pos.UpdatedAt)
		}

		if side == models.SideShort {
			out.Short = pos
		} else {
			out.Long = pos
		}
	}
	return out, nil
}

// SetLeverage реализует Executor; одинаковое плечо для обеих сторон
func (b *Bybit) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return &ExchangeError{Exchange: b.GetName(), Code: "invalid_leverage", Message: fmt.Sprintf("leverage must be >= 1, got %d", leverage), Permanent: true}
	}
	lev := strconv.Itoa(leverage)
	_, err := b.doRequest(ctx, http.MethodPost, "/v5/position/set-leverage", map[string]interface{}{
		"category":     "linear",
		"symbol":       bybitSymbol(symbol),
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}, true)

	var exErr *ExchangeError
	if errors.As(err, &exErr) && exErr.Code == strconv.Itoa(bybitLeverageNotModified) {
		return nil
	}
	return err
}
