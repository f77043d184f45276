package risk

import (
	"math"

	"cryptotrader/internal/models"
)

// Assessment - результат оценки позиции на одном тике
type Assessment struct {
	Verdict     models.RiskVerdict `json:"verdict"`
	MarginRatio float64            `json:"margin_ratio"`
	StopPrice   float64            `json:"stop_price"`
	Trailing    bool               `json:"trailing"`
}

// MarginRatio = (начальная маржа + нереализованный PnL при close) / (amount * close)
//
// Начальная маржа = entry * amount / leverage.
func MarginRatio(pos models.Position, close float64) float64 {
	lev := pos.Leverage
	if lev < 1 {
		lev = 1
	}
	margin := pos.EntryPrice * pos.Amount / float64(lev)
	unrealized := models.PositionPnl(pos.Side, pos.EntryPrice, close, pos.Amount)
	return (margin + unrealized) / (pos.Amount * close)
}

// ClassifyMargin возвращает вердикт только по коэффициенту маржи
func ClassifyMargin(ratio float64, th models.RiskThresholds) models.RiskVerdict {
	switch {
	case ratio < th.AutoLiquidationRatio:
		return models.VerdictAutoLiquidate
	case ratio < th.MarginCallRatio:
		return models.VerdictMarginCall
	default:
		return models.VerdictNone
	}
}

// Evaluate оценивает позицию по свече; чистая функция без побочных эффектов
//
// Порядок: AutoLiquidate перекрывает все, затем StopLossHit, затем MarginCall.
// Битый снапшот возвращает RiskEvaluationError.
func Evaluate(pos models.Position, bar models.Bar, atrFraction float64, th models.RiskThresholds) (Assessment, error) {
	if err := validateSnapshot(pos, bar); err != nil {
		return Assessment{}, err
	}
	if err := th.Validate(); err != nil {
		return Assessment{}, evalErr(pos.Symbol, "invalid thresholds", err)
	}

	ratio := MarginRatio(pos, bar.Close)
	stop := TrailingStop(pos, bar.Close, atrFraction, th)

	a := Assessment{
		Verdict:     models.VerdictNone,
		MarginRatio: ratio,
		StopPrice:   stop.Price,
		Trailing:    stop.Trailing,
	}

	marginVerdict := ClassifyMargin(ratio, th)
	switch {
	case marginVerdict == models.VerdictAutoLiquidate:
		a.Verdict = models.VerdictAutoLiquidate
	case StopCrossed(pos.Side, bar.Close, stop.Price):
		a.Verdict = models.VerdictStopLossHit
	default:
		a.Verdict = marginVerdict
	}
	return a, nil
}

func validateSnapshot(pos models.Position, bar models.Bar) error {
	switch {
	case pos.Symbol == "":
		return evalErr(bar.Symbol, "position has no symbol", nil)
	case pos.Status.IsTerminal():
		return evalErr(pos.Symbol, "position is "+string(pos.Status), nil)
	case !(pos.EntryPrice > 0) || math.IsInf(pos.EntryPrice, 0):
		return evalErr(pos.Symbol, "missing entry price", nil)
	case !(pos.Amount > 0) || math.IsInf(pos.Amount, 0):
		return evalErr(pos.Symbol, "non-positive amount", nil)
	case pos.Leverage < 1:
		return evalErr(pos.Symbol, "leverage below 1", nil)
	case !(bar.Close > 0) || math.IsInf(bar.Close, 0):
		return evalErr(pos.Symbol, "bar has no close price", nil)
	case bar.Symbol != "" && bar.Symbol != pos.Symbol:
		return evalErr(pos.Symbol, "bar belongs to "+bar.Symbol, nil)
	}
	return nil
}
