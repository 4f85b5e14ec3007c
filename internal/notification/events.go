package notification

import (
	"fmt"

	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/model"
)

// SignalAlert formats a scored signal as an alert. Only BUY-class tiers
// are worth interrupting anyone for; callers gate on ShouldNotify.
func SignalAlert(s model.Signal) Alert {
	level := AlertInfo
	if s.Tier == model.TierABuy {
		level = AlertWarning // strongest tier, most time-sensitive
	}
	msg := fmt.Sprintf("score %.1f/%.0f at %.2f", s.Total, s.MaxScore, s.CurrentPrice)
	if s.EntryPrice.Valid {
		msg += fmt.Sprintf(" | entry %.2f stop %.2f target %.2f",
			s.EntryPrice.Val, s.StopLoss.Val, s.TargetPrice.Val)
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s %s", s.Tier, s.Symbol, s.Timeframe),
		Message: msg,
	}
}

// ShouldNotify reports whether a signal merits an outbound alert.
func ShouldNotify(s model.Signal) bool {
	return s.Tier.IsBuyClass()
}

// EntryAlert formats an entry lifecycle event as an alert.
func EntryAlert(e model.Entry, event string) Alert {
	level := AlertInfo
	switch event {
	case entry.EventStopLoss, entry.EventInvalidated:
		level = AlertCritical
	case entry.EventSignalExit, entry.EventTrailingStop:
		level = AlertWarning
	}

	msg := fmt.Sprintf("entry %.2f, now %.2f (%.2f%%)",
		e.EntryPrice, e.CurrentPrice, e.CurrentProfitPct)
	if e.FinalProfitPct.Valid {
		msg = fmt.Sprintf("entry %.2f, exited %.2f (%.2f%%)",
			e.EntryPrice, e.ExitPrice.Or(e.CurrentPrice), e.FinalProfitPct.Val)
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s %s", event, e.Symbol, e.Timeframe),
		Message: msg,
	}
}
