package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"cryptotrader/internal/models"
)

// ============================================================
// NotificationRepository Tests
// ============================================================

var notificationRowColumns = []string{"id", "timestamp", "type", "severity", "symbol", "message", "meta"}

func TestNewNotificationRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	if repo == nil {
		t.Fatal("NewNotificationRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestNotificationRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		notif       *models.Notification
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success without meta",
			notif: &models.Notification{
				Type:     models.NotificationTypeMarginCall,
				Severity: models.SeverityWarn,
				Symbol:   "BTC/USDT",
				Message:  "margin ratio 0.08 below 0.10",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(sqlmock.AnyArg(), models.NotificationTypeMarginCall, models.SeverityWarn, "BTC/USDT", "margin ratio 0.08 below 0.10", []byte(nil)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		{
			name: "success with meta",
			notif: &models.Notification{
				Type:     models.NotificationTypeError,
				Severity: models.SeverityError,
				Symbol:   "ETH/USDT",
				Message:  "fetch_bars: timeout",
				Meta:     map[string]interface{}{"stage": "fetch_bars"},
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(sqlmock.AnyArg(), models.NotificationTypeError, models.SeverityError, "ETH/USDT", "fetch_bars: timeout", []byte(`{"stage":"fetch_bars"}`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
			},
		},
		{
			name: "database error",
			notif: &models.Notification{
				Type:     models.NotificationTypeStopLoss,
				Severity: models.SeverityError,
				Message:  "stop crossed",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewNotificationRepository(db)
			err = repo.Create(tt.notif)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.notif.ID == 0 {
					t.Error("expected ID to be set")
				}
				if tt.notif.Timestamp.IsZero() {
					t.Error("expected timestamp to be set")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestNotificationRepositoryGetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectMeta  bool
		expectError error
	}{
		{
			name: "success without meta",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(notificationRowColumns).
					AddRow(1, now, models.NotificationTypeMarginCall, models.SeverityWarn, "BTC/USDT", "margin call", nil)
				mock.ExpectQuery(`SELECT .+ FROM notifications WHERE id = \$1`).
					WithArgs(1).
					WillReturnRows(rows)
			},
		},
		{
			name: "success with meta",
			id:   2,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(notificationRowColumns).
					AddRow(2, now, models.NotificationTypeLeverage, models.SeverityInfo, "BTC/USDT", "leverage 10 -> 3", []byte(`{"new_leverage":3}`))
				mock.ExpectQuery(`SELECT .+ FROM notifications WHERE id = \$1`).
					WithArgs(2).
					WillReturnRows(rows)
			},
			expectMeta: true,
		},
		{
			name: "not found",
			id:   999,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM notifications WHERE id = \$1`).
					WithArgs(999).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrNotificationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewNotificationRepository(db)
			result, err := repo.GetByID(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Symbol != "BTC/USDT" {
					t.Errorf("expected Symbol=BTC/USDT, got %s", result.Symbol)
				}
				if tt.expectMeta && result.Meta["new_leverage"] != float64(3) {
					t.Errorf("expected meta new_leverage=3, got %v", result.Meta)
				}
				if !tt.expectMeta && result.Meta != nil {
					t.Errorf("expected nil meta, got %v", result.Meta)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestNotificationRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow(2, now, models.NotificationTypeAutoLiquidate, models.SeverityError, "BTC/USDT", "auto liquidation", nil).
		AddRow(1, now.Add(-time.Hour), models.NotificationTypeMarginCall, models.SeverityWarn, "BTC/USDT", "margin call", nil)
	mock.ExpectQuery(`SELECT .+ FROM notifications ORDER BY timestamp DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	result, err := repo.GetRecent(10)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryGetBySymbol(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow(1, time.Now(), models.NotificationTypeStopLoss, models.SeverityError, "ETH/USDT", "stop crossed", nil)
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE symbol = \$1 ORDER BY timestamp DESC LIMIT \$2`).
		WithArgs("ETH/USDT", 5).
		WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	result, err := repo.GetBySymbol("ETH/USDT", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Type != models.NotificationTypeStopLoss {
		t.Errorf("unexpected result: %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryGetByTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE type = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))

	// пустой фильтр -> GetRecent
	mock.ExpectQuery(`SELECT .+ FROM notifications ORDER BY timestamp DESC LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))

	repo := NewNotificationRepository(db)
	if _, err := repo.GetByTypes([]string{models.NotificationTypeAutoLiquidate, models.NotificationTypeStopLoss}, 20); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := repo.GetByTypes(nil, 20); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow(1, time.Now(), models.NotificationTypeError, models.SeverityError, "BTC/USDT", "bad meta", []byte(`{not json`))
	mock.ExpectQuery(`SELECT .+ FROM notifications`).WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	if _, err := repo.GetRecent(1); err == nil {
		t.Error("expected error for malformed meta")
	}
}

func TestNotificationRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM notifications WHERE timestamp < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	repo := NewNotificationRepository(db)
	n, err := repo.DeleteOlderThan(cutoff)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 deleted, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
