package repository

import (
	"database/sql"
	"errors"

	"cryptotrader/internal/models"
)

// Ошибки репозитория бэктестов
var (
	ErrBacktestNotFound = errors.New("backtest run not found")
)

// BacktestRepository - хранение отчетов бэктеста
//
// Сводные поля лежат в колонках для списков, полный отчет - в JSONB.
type BacktestRepository struct {
	db *sql.DB
}

// NewBacktestRepository создает новый экземпляр репозитория
func NewBacktestRepository(db *sql.DB) *BacktestRepository {
	return &BacktestRepository{db: db}
}

// Save сохраняет отчет; повторное сохранение того же run_id перезаписывает запись
func (r *BacktestRepository) Save(report *models.BacktestReport) error {
	if report == nil || report.RunID == "" {
		return errors.New("backtest report without run id")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO backtest_runs (run_id, status, start_at, end_at, initial_capital, final_value, total_return, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status, final_value = EXCLUDED.final_value,
			total_return = EXCLUDED.total_return, report = EXCLUDED.report`

	_, err = r.db.Exec(query,
		report.RunID,
		report.Status,
		report.Start,
		report.End,
		report.Portfolio.InitialCapital,
		report.Portfolio.FinalValue,
		report.Portfolio.Return,
		payload,
		report.CreatedAt,
	)
	return err
}

// GetByID возвращает полный отчет прогона
func (r *BacktestRepository) GetByID(runID string) (*models.BacktestReport, error) {
	var payload []byte
	err := r.db.QueryRow(`SELECT report FROM backtest_runs WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBacktestNotFound
		}
		return nil, err
	}

	report := &models.BacktestReport{}
	if err := json.Unmarshal(payload, report); err != nil {
		return nil, err
	}
	return report, nil
}

// List возвращает последние прогоны без тяжелых полей
func (r *BacktestRepository) List(limit int) ([]models.BacktestSummary, error) {
	query := `
		SELECT run_id, status, start_at, end_at, initial_capital, final_value, total_return, created_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BacktestSummary
	for rows.Next() {
		var s models.BacktestSummary
		if err := rows.Scan(&s.RunID, &s.Status, &s.Start, &s.End, &s.InitialCapital, &s.FinalValue, &s.Return, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete удаляет прогон
func (r *BacktestRepository) Delete(runID string) error {
	result, err := r.db.Exec(`DELETE FROM backtest_runs WHERE run_id = $1`, runID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBacktestNotFound
	}
	return nil
}
