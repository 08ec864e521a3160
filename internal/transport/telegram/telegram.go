// Package telegram posts notifications to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"seatwatch/internal/transport"
)

const textLimit = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic, 0 if none
	// APIURL overrides the Bot API endpoint (tests, self-hosted bot API).
	APIURL string
}

type Sender struct {
	cfg Config
	bot *tele.Bot
}

func New(cfg Config, httpClient *http.Client) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, bot: b}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send posts the message to the configured chat. telebot has no context
// support, so cancellation abandons the call rather than aborting it.
func (s *Sender) Send(ctx context.Context, m transport.Message) error {
	text := render(m)
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.cfg.ThreadID,
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, text, opts)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const subjectLimit = 256

// render builds the HTML message. Text is cut before it is wrapped in tags,
// so a long body never splits a tag or an entity.
func render(m transport.Message) string {
	head := "<b>" + escapeLimit(m.Subject, subjectLimit) + "</b>\n"
	var foot string
	if m.To != "" {
		foot = "\n<i>for " + escapeLimit(m.To, subjectLimit) + "</i>"
	}
	budget := textLimit - utf8.RuneCountInString(head) - utf8.RuneCountInString(foot)
	return head + escapeLimit(m.Body, budget) + foot
}

// escapeLimit HTML-escapes s, keeping whole escaped runes up to limit runes.
func escapeLimit(s string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		e := html.EscapeString(string(r))
		w := utf8.RuneCountInString(e)
		if n+w > limit {
			break
		}
		b.WriteString(e)
		n += w
	}
	return b.String()
}
