package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cryptotrader/internal/models"
	"cryptotrader/internal/service"
)

// RiskHandler - состояние live мониторинга и расчеты риска
//
// Endpoints:
// - GET /api/v1/positions - снимок книги позиций
// - GET /api/v1/risk/thresholds - действующие пороги
// - POST /api/v1/risk/evaluate - оценка позиции по присланной свече
// - GET /api/v1/leverage/recommend - рекомендация плеча по волатильности
// - GET /api/v1/orders - журнал ордеров риск-контроля
type RiskHandler struct {
	riskService service.RiskServiceInterface
}

// NewRiskHandler создает RiskHandler
func NewRiskHandler(riskService service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{riskService: riskService}
}

// PositionsResponse - ответ со снимком позиций
type PositionsResponse struct {
	Positions []models.Position `json:"positions"`
	Total     int               `json:"total"`
}

// GetPositions возвращает позиции, опционально по символу
//
// GET /api/v1/positions?symbol=BTC/USDT
func (h *RiskHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.riskService.Positions(strings.TrimSpace(r.URL.Query().Get("symbol")))
	respondWithJSON(w, http.StatusOK, PositionsResponse{Positions: positions, Total: len(positions)})
}

// GetThresholds возвращает пороги риск-контроля
func (h *RiskHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.riskService.Thresholds())
}

// Evaluate оценивает позицию
//
// POST /api/v1/risk/evaluate
//
// Тело: {"position": {...}, "bar": {...}} или {"position": {...}, "bars": [...]},
// опционально "atr_fraction".
//
// HTTP коды:
// - 200 OK: вердикт, маржа, стоп
// - 400 Bad Request: битый JSON или некорректная позиция
func (h *RiskHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req service.EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.riskService.Evaluate(req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			respondWithError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// RecommendLeverage рассчитывает плечо
//
// GET /api/v1/leverage/recommend?volatility=0.03&max=25&symbol=BTC/USDT
//
// volatility - доля ATR от цены, обязательна и неотрицательна.
func (h *RiskHandler) RecommendLeverage(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("volatility"))
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "volatility is required")
		return
	}
	vol, err := strconv.ParseFloat(raw, 64)
	if err != nil || vol < 0 {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "volatility must be a non-negative number")
		return
	}

	rec := h.riskService.RecommendLeverage(r.URL.Query().Get("symbol"), vol, queryInt(r, "max", 0))
	respondWithJSON(w, http.StatusOK, rec)
}

// OrdersResponse - ответ журнала ордеров
type OrdersResponse struct {
	Orders []*models.OrderRecord `json:"orders"`
	Total  int                   `json:"total"`
}

// GetOrders возвращает ордера, выставленные риск-контролем
//
// GET /api/v1/orders?symbol=BTC/USDT&limit=50
func (h *RiskHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.riskService.RecentOrders(strings.TrimSpace(r.URL.Query().Get("symbol")), queryInt(r, "limit", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "failed to get orders: "+err.Error())
		return
	}
	if orders == nil {
		orders = []*models.OrderRecord{}
	}
	respondWithJSON(w, http.StatusOK, OrdersResponse{Orders: orders, Total: len(orders)})
}
