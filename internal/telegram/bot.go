// Package telegram отправляет оператору оповещения об остановках ботов.
package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/volume-bot/pkg/utils"
)

// Notifier канал доставки оповещений
type Notifier interface {
	SendMessage(text string)
}

// Nop отбрасывает сообщения, когда Telegram не настроен
type Nop struct{}

func (Nop) SendMessage(string) {}

// Bot отправляет сообщения в один чат
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
}

// NewBot авторизуется в Telegram API
func NewBot(token string, chatID int64, logger *utils.Logger) (*Bot, error) {
	return NewBotWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second}, chatID, logger)
}

// NewBotWithEndpoint как NewBot, но с другим адресом API (тесты, прокси)
func NewBotWithEndpoint(token, endpoint string, client *http.Client, chatID int64, logger *utils.Logger) (*Bot, error) {
	if logger == nil {
		logger = utils.Discard()
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	return &Bot{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// SendMessage отправляет сообщение пользователю
func (b *Bot) SendMessage(text string) {
	// Разбиваем длинные сообщения
	const maxLength = 4096
	messages := splitMessage(text, maxLength)

	for _, msg := range messages {
		message := tgbotapi.NewMessage(b.chatID, msg)
		if _, err := b.api.Send(message); err != nil {
			b.logger.Error("Failed to send telegram message: %v", err)
		}
	}
}

// splitMessage разбивает длинное сообщение на части
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	lines := strings.Split(text, "\n")
	currentMessage := ""

	for _, line := range lines {
		for len(line) > maxLength {
			if currentMessage != "" {
				messages = append(messages, currentMessage)
				currentMessage = ""
			}
			messages = append(messages, line[:maxLength])
			line = line[maxLength:]
		}

		if currentMessage != "" && len(currentMessage)+len(line)+1 > maxLength {
			messages = append(messages, currentMessage)
			currentMessage = line
		} else {
			if currentMessage != "" {
				currentMessage += "\n"
			}
			currentMessage += line
		}
	}

	if currentMessage != "" {
		messages = append(messages, currentMessage)
	}

	return messages
}
