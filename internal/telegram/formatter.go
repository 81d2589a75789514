package telegram

import (
	"fmt"
	"strings"

	"github.com/kirillm/volume-bot/internal/domain"
)

// Lang представляет язык
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

// Formatter форматирует оповещения для оператора
type Formatter struct {
	lang Lang
}

// NewFormatter создает новый форматтер
func NewFormatter(lang Lang) *Formatter {
	if lang != LangRU && lang != LangEN {
		lang = LangEN
	}
	return &Formatter{lang: lang}
}

// GetLang возвращает текущий язык
func (f *Formatter) GetLang() Lang {
	return f.lang
}

var translations = map[string]map[Lang]string{
	"bot_stopped":      {LangEN: "Bot stopped", LangRU: "Бот остановлен"},
	"execution_failed": {LangEN: "Bot execution failed", LangRU: "Ошибка исполнения бота"},
	"kill_on":          {LangEN: "Kill switch activated", LangRU: "Kill switch включен"},
	"kill_off":         {LangEN: "Kill switch deactivated", LangRU: "Kill switch выключен"},
	"reason":           {LangEN: "Reason", LangRU: "Причина"},
	"pair":             {LangEN: "Pair", LangRU: "Пара"},
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if trans, ok := translations[key]; ok {
		if val, ok := trans[f.lang]; ok {
			return val
		}
	}
	return key
}

// FormatBotStopped оповещение о выключении бота проверкой безопасности
func (f *Formatter) FormatBotStopped(pair domain.Pair, reason string) string {
	var sb strings.Builder
	sb.WriteString("🛑 ")
	sb.WriteString(f.T("bot_stopped"))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("pair"), pair))
	sb.WriteString(fmt.Sprintf("%s: %s", f.T("reason"), reason))
	return sb.String()
}

// FormatExecutionError оповещение об ошибке исполнения
func (f *Formatter) FormatExecutionError(pair domain.Pair, msg string) string {
	return fmt.Sprintf("⚠️ %s\n\n%s: %s\n%s", f.T("execution_failed"), f.T("pair"), pair, msg)
}

// FormatKillSwitch оповещение о смене состояния kill switch
func (f *Formatter) FormatKillSwitch(active bool, reason string) string {
	if !active {
		return "✅ " + f.T("kill_off")
	}
	return fmt.Sprintf("🚨 %s\n\n%s: %s", f.T("kill_on"), f.T("reason"), reason)
}
