// Package notify implements the outbound messaging contracts over Telegram
// and the authority reporting endpoint.
package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"swasthai.dev/health-sentinel/internal/core"
	"swasthai.dev/health-sentinel/internal/store"
)

// UserDirectory resolves the recipients of a location-scoped broadcast.
type UserDirectory interface {
	GetUsersByLocation(location string) ([]store.User, error)
}

// TelegramNotifier sends user-facing messages through the Telegram Bot API
// and forwards authority escalations to the configured endpoint.
type TelegramNotifier struct {
	api       *tgbotapi.BotAPI
	directory UserDirectory
	authority *AuthorityClient
}

var _ core.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(token string, directory UserDirectory, authority *AuthorityClient) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	log.Printf("notify: authorized as @%s", api.Self.UserName)

	return &TelegramNotifier{
		api:       api,
		directory: directory,
		authority: authority,
	}, nil
}

func (n *TelegramNotifier) SendMessage(ctx context.Context, telegramID, text string) error {
	chatID, err := parseChatID(telegramID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to %s: %w", telegramID, err)
	}
	return nil
}

// Broadcast delivers text to every user in the given location. Individual
// send failures are logged and skipped; the broadcast fails only if no
// recipient could be reached.
func (n *TelegramNotifier) Broadcast(ctx context.Context, location, text string) error {
	users, err := n.directory.GetUsersByLocation(location)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast recipients: %w", err)
	}
	if len(users) == 0 {
		log.Printf("notify: no users registered in %s, broadcast skipped", location)
		return nil
	}

	sent := 0
	for _, user := range users {
		if err := n.SendMessage(ctx, user.TelegramID, text); err != nil {
			log.Printf("notify: broadcast to %s failed: %v", user.TelegramID, err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("broadcast to %s reached none of %d users", location, len(users))
	}
	log.Printf("notify: broadcast to %s reached %d/%d users", location, sent, len(users))
	return nil
}

func (n *TelegramNotifier) NotifyAuthority(ctx context.Context, payload core.AuthorityPayload) error {
	return n.authority.Submit(ctx, payload)
}

func parseChatID(telegramID string) (int64, error) {
	var chatID int64
	if _, err := fmt.Sscanf(telegramID, "%d", &chatID); err != nil {
		return 0, fmt.Errorf("invalid telegram id %q: %w", telegramID, err)
	}
	return chatID, nil
}
