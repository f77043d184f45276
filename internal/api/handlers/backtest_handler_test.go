package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"cryptotrader/internal/models"
	"cryptotrader/internal/service"
)

func TestBacktestHandler_RunBacktest(t *testing.T) {
	t.Run("creates report", func(t *testing.T) {
		mockSvc := NewMockBacktestService()
		handler := NewBacktestHandler(mockSvc)

		body := `{
			"symbols": ["BTC/USDT", "ETH/USDT"],
			"timeframe": "1d",
			"start": "2024-01-01T00:00:00Z",
			"end": "2024-03-01T00:00:00Z",
			"initial_capital": 1000,
			"commission": 0,
			"rebalance": "weekly",
			"bars": {"BTC/USDT": [{"timestamp": "2024-01-01T00:00:00Z", "close": 42000}]}
		}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/backtests", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.RunBacktest(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}
		var report models.BacktestReport
		if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if report.RunID != "run-1" {
			t.Errorf("unexpected run id %q", report.RunID)
		}

		got := mockSvc.lastReq
		if len(got.Symbols) != 2 || got.Timeframe != "1d" || got.Rebalance != "weekly" {
			t.Errorf("scenario not decoded: %+v", got.Scenario)
		}
		if got.Commission == nil || *got.Commission != 0 {
			t.Errorf("explicit zero commission lost: %v", got.Commission)
		}
		if got.Slippage != nil {
			t.Errorf("absent slippage must stay nil, got %v", *got.Slippage)
		}
		if len(got.Bars["BTC/USDT"]) != 1 {
			t.Errorf("bars not decoded: %+v", got.Bars)
		}
	})

	tests := []struct {
		name     string
		body     string
		svcErr   error
		wantCode int
	}{
		{"битый JSON", "[", nil, http.StatusBadRequest},
		{"некорректный сценарий", `{}`, fmt.Errorf("%w: no symbols", service.ErrInvalidRequest), http.StatusBadRequest},
		{"ошибка загрузки", `{"symbols":["BTC/USDT"]}`, errors.New("exchange down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := NewMockBacktestService()
			mockSvc.runErr = tt.svcErr
			handler := NewBacktestHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/backtests", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.RunBacktest(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestBacktestHandler_GetAndList(t *testing.T) {
	mockSvc := NewMockBacktestService()
	handler := NewBacktestHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.ListBacktests(w, httptest.NewRequest(http.MethodGet, "/api/v1/backtests", nil))
	var empty BacktestListResponse
	if err := json.NewDecoder(w.Body).Decode(&empty); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if empty.Total != 0 || empty.Backtests == nil {
		t.Errorf("expected empty non-nil list, got %+v", empty)
	}

	handler.RunBacktest(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/backtests", strings.NewReader(`{"symbols":["BTC/USDT"]}`)))

	w = httptest.NewRecorder()
	handler.ListBacktests(w, httptest.NewRequest(http.MethodGet, "/api/v1/backtests?limit=5", nil))
	var list BacktestListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Total != 1 || list.Backtests[0].FinalValue != 1100 {
		t.Errorf("unexpected list %+v", list)
	}

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/backtests/run-1", nil), map[string]string{"id": "run-1"})
	w = httptest.NewRecorder()
	handler.GetBacktest(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/backtests/nope", nil), map[string]string{"id": "nope"})
	w = httptest.NewRecorder()
	handler.GetBacktest(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	w = httptest.NewRecorder()
	handler.ListBacktests(w, httptest.NewRequest(http.MethodGet, "/api/v1/backtests?limit=-1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
