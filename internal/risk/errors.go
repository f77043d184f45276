package risk

import (
	"errors"
	"fmt"
)

// RiskEvaluationError - позицию нельзя оценить на этом тике
//
// Монитор пропускает такую позицию, но не прерывает цикл. Сбои биржи
// на этом уровне относятся к тому же классу.
type RiskEvaluationError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *RiskEvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("risk evaluation [%s]: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("risk evaluation [%s]: %s", e.Symbol, e.Reason)
}

// Unwrap возвращает причину для errors.Is() и errors.As()
func (e *RiskEvaluationError) Unwrap() error {
	return e.Err
}

// IsEvaluationError проверяет, является ли ошибка RiskEvaluationError
func IsEvaluationError(err error) bool {
	var re *RiskEvaluationError
	return errors.As(err, &re)
}

func evalErr(symbol, reason string, err error) error {
	return &RiskEvaluationError{Symbol: symbol, Reason: reason, Err: err}
}
