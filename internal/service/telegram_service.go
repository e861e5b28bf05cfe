package service

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"olympspa/internal/domain"
	"olympspa/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// telegramMaxText is the Bot API limit for one message body.
const telegramMaxText = 4096

// TelegramService delivers operator notices to a fixed set of chats.
type TelegramService struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramService(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramService{
		bot:     bot,
		chatIDs: chatIDs,
		logger:  logger,
	}
}

// SendMarkdown sends text to one chat, cut to the API limit.
func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, truncateText(text, telegramMaxText))
	msg.ParseMode = models.ParseModeMarkdown
	msg.DisableWebPagePreview = true
	return s.bot.Send(msg)
}

// Broadcast sends text to every configured chat. It keeps going after a
// failed chat and returns all failures joined.
func (s *TelegramService) Broadcast(text string) error {
	if len(s.chatIDs) == 0 {
		return errors.New("telegram: no alert chats configured")
	}

	var errs []error
	for _, chatID := range s.chatIDs {
		if _, err := s.SendMarkdown(chatID, text); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func truncateText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}
