package telegram

import "github.com/kirillm/volume-bot/internal/domain"

// Alerts оповещения планировщика и API
type Alerts struct {
	notifier  Notifier
	formatter *Formatter
}

// NewAlerts nil notifier означает отключенные оповещения
func NewAlerts(notifier Notifier, lang Lang) *Alerts {
	if notifier == nil {
		notifier = Nop{}
	}
	return &Alerts{notifier: notifier, formatter: NewFormatter(lang)}
}

func (a *Alerts) BotStopped(pair domain.Pair, reason string) {
	a.notifier.SendMessage(a.formatter.FormatBotStopped(pair, reason))
}

func (a *Alerts) ExecutionFailed(pair domain.Pair, msg string) {
	a.notifier.SendMessage(a.formatter.FormatExecutionError(pair, msg))
}

func (a *Alerts) KillSwitchChanged(active bool, reason string) {
	a.notifier.SendMessage(a.formatter.FormatKillSwitch(active, reason))
}
