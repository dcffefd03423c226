package telegramrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MaksymBus/library-service-api/util/httpx"
)

type httpRepo struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewHTTP(botToken, chatID string) Repo {
	return &httpRepo{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   httpx.Client(),
	}
}

func (r *httpRepo) SendMessage(ctx context.Context, text string) error {
	if r.botToken == "" || r.chatID == "" {
		return ErrMissingCredentials
	}

	body := map[string]any{
		"chat_id":    r.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	b, _ := json.Marshal(body)

	url := fmt.Sprintf("%s/bot%s/sendMessage", r.baseURL, r.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send message failed: %s", resp.Status)
	}
	return nil
}
