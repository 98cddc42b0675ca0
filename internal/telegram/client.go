// Package telegram is a minimal Bot API client: sendMessage for delivery and
// getUpdates long polling for inbound commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// maxMessageLength is the Bot API limit for one message
const maxMessageLength = 4096

// Client talks to the Telegram Bot API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the bot identified by token
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send delivers an HTML message. If Telegram rejects the markup the message
// is sent once more as plain text. Failures are *models.TransportError.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  truncateMessage(text),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	_, err := c.call(ctx, "sendMessage", req)
	if isEntityError(err) {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Telegram rejected HTML, resending as plain text")
		req.Text = truncateMessage(plainText(text))
		req.ParseMode = ""
		_, err = c.call(ctx, "sendMessage", req)
	}
	if err != nil {
		var terr *models.TransportError
		if errors.As(err, &terr) {
			terr.ChatID = chatID
			return terr
		}
		return &models.TransportError{ChatID: chatID, Err: err}
	}
	return nil
}

// Update is the subset of a Bot API update the agent reads
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message
type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long-polls for updates after offset
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	}
	raw, err := c.call(ctx, "getUpdates", req)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &models.TransportError{Err: fmt.Errorf("%s request failed: %w", method, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read %s response: %w", method, err)}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, &models.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode %s response: %w", method, err)}
	}
	if !apiResp.OK {
		code := apiResp.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &models.TransportError{StatusCode: code, Err: errors.New(apiResp.Description)}
	}
	return apiResp.Result, nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// isEntityError matches the 400 Telegram returns for malformed HTML
func isEntityError(err error) bool {
	var terr *models.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusBadRequest || terr.Err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(terr.Err.Error()), "can't parse entities")
}

func plainText(text string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(text, ""))
}

// truncateMessage cuts text to the Bot API limit without splitting a tag or
// an entity at the cut
func truncateMessage(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageLength {
		return text
	}
	cut := string(r[:maxMessageLength-1])
	if i := strings.LastIndexByte(cut, '<'); i > strings.LastIndexByte(cut, '>') {
		cut = cut[:i]
	}
	if i := strings.LastIndexByte(cut, '&'); i > strings.LastIndexByte(cut, ';') {
		cut = cut[:i]
	}
	return cut + "…"
}
