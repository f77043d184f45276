package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cryptotrader/internal/models"
	"cryptotrader/internal/service"
)

// BacktestHandler запускает бэктесты и отдает отчеты
//
// Endpoints:
// - POST /api/v1/backtests - запуск прогона
// - GET /api/v1/backtests - список прогонов
// - GET /api/v1/backtests/{id} - полный отчет
type BacktestHandler struct {
	backtestService service.BacktestServiceInterface
}

// NewBacktestHandler создает BacktestHandler
func NewBacktestHandler(backtestService service.BacktestServiceInterface) *BacktestHandler {
	return &BacktestHandler{backtestService: backtestService}
}

// BacktestListResponse - список прогонов
type BacktestListResponse struct {
	Backtests []models.BacktestSummary `json:"backtests"`
	Total     int                      `json:"total"`
}

// RunBacktest выполняет прогон синхронно
//
// POST /api/v1/backtests
//
// Тело - сценарий (symbols, timeframe, start, end, initial_capital, ...)
// и опционально bars: {"BTC/USDT": [...]}. Без bars свечи грузятся из
// источника рыночных данных.
//
// HTTP коды:
// - 201 Created: отчет прогона
// - 400 Bad Request: некорректный сценарий или данные
// - 500 Internal Server Error: ошибка загрузки или симуляции
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req service.BacktestRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.backtestService.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			respondWithError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, report)
}

// ListBacktests возвращает краткие записи прогонов
//
// GET /api/v1/backtests?limit=20
func (h *BacktestHandler) ListBacktests(w http.ResponseWriter, r *http.Request) {
	list, err := h.backtestService.List(queryInt(r, "limit", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "failed to list backtests: "+err.Error())
		return
	}
	if list == nil {
		list = []models.BacktestSummary{}
	}
	respondWithJSON(w, http.StatusOK, BacktestListResponse{Backtests: list, Total: len(list)})
}

// GetBacktest возвращает отчет по run_id
//
// GET /api/v1/backtests/{id}
func (h *BacktestHandler) GetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "id is required")
		return
	}

	report, err := h.backtestService.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrBacktestNotFound) {
			respondWithError(w, http.StatusNotFound, CodeNotFound, "backtest not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}
