package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/models"
)

// Sender delivers text replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetMe(ctx context.Context) (*User, error)
}

// Client talks to the Telegram Bot API.
type Client struct {
	http *resty.Client
}

func NewClient(apiBase, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(apiBase, "/") + "/bot" + token).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

// SendMessage sends text to chatID, split into several messages when it is
// longer than Telegram allows.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for i, part := range SplitMessage(text, models.TelegramMaxMessageSize) {
		var out apiResponse[Message]
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(sendMessageRequest{ChatID: chatID, Text: part}).
			SetResult(&out).
			SetError(&out).
			Post("/sendMessage")
		if err != nil {
			return fmt.Errorf("sendMessage: %w", err)
		}
		if !resp.IsSuccess() || !out.OK {
			return fmt.Errorf("sendMessage: status %d: %s", resp.StatusCode(), out.Description)
		}
		log.Debug().Int64("chat_id", chatID).Int("part", i+1).Int("chars", utf8.RuneCountInString(part)).Msg("Message sent")
	}
	return nil
}

// GetMe returns the bot account, used to check the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out apiResponse[User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/getMe")
	if err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}
	if !resp.IsSuccess() || !out.OK {
		return nil, fmt.Errorf("getMe: status %d: %s", resp.StatusCode(), out.Description)
	}
	return &out.Result, nil
}

// SplitMessage cuts text into parts of at most limit runes, preferring to
// break after a newline.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
