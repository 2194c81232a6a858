// Package discord implements the chat client over the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// DefaultBaseURL is the Discord REST endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// Client is a minimal bot-token REST client implementing base.ChatClient.
type Client struct {
	token   string
	userID  string
	baseURL string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithBotUser sets the bot's own user id, used to pick out its messages
// during a purge.
func WithBotUser(userID string) Option {
	return func(c *Client) {
		c.userID = userID
	}
}

// New creates a Client authenticated with a bot token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("requires bot token")
	}
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type messagePayload struct {
	Embeds []embed `json:"embeds"`
}

type messageResponse struct {
	ID     string `json:"id"`
	Author struct {
		ID string `json:"id"`
	} `json:"author"`
}

// Send posts an embed to a channel and returns its handle.
func (c *Client) Send(ctx context.Context, guildID, channelID string, msg base.ChatMessage) (base.NotificationHandle, error) {
	payload := messagePayload{Embeds: []embed{{
		Title:       msg.Title,
		Description: msg.Body,
	}}}
	if msg.Footer != "" {
		payload.Embeds[0].Footer = &embedFooter{Text: msg.Footer}
	}

	var created messageResponse
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	if err := c.do(ctx, http.MethodPost, url, payload, &created); err != nil {
		return base.NotificationHandle{}, errors.Wrap(err, "sending message")
	}

	return base.NotificationHandle{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: created.ID,
	}, nil
}

// Delete removes a previously sent message.
func (c *Client) Delete(ctx context.Context, handle base.NotificationHandle) error {
	url := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, handle.ChannelID, handle.MessageID)
	return errors.Wrap(c.do(ctx, http.MethodDelete, url, nil, nil), "deleting message")
}

// BulkDelete removes the bot's own recent messages from a channel.
func (c *Client) BulkDelete(ctx context.Context, channelID string) error {
	var recent []messageResponse
	listURL := fmt.Sprintf("%s/channels/%s/messages?limit=100", c.baseURL, channelID)
	if err := c.do(ctx, http.MethodGet, listURL, nil, &recent); err != nil {
		return errors.Wrap(err, "listing channel messages")
	}

	var own []string
	for _, msg := range recent {
		if msg.Author.ID == c.userID {
			own = append(own, msg.ID)
		}
	}
	if len(own) == 0 {
		return nil
	}
	if len(own) == 1 {
		url := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, own[0])
		return errors.Wrap(c.do(ctx, http.MethodDelete, url, nil, nil), "deleting message")
	}

	url := fmt.Sprintf("%s/channels/%s/messages/bulk-delete", c.baseURL, channelID)
	body := map[string][]string{"messages": own}
	return errors.Wrap(c.do(ctx, http.MethodPost, url, body, nil), "bulk deleting messages")
}

// Reply posts a plain-text acknowledgement to a channel.
func (c *Client) Reply(ctx context.Context, channelID, content string) error {
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	body := map[string]string{"content": content}
	return errors.Wrap(c.do(ctx, http.MethodPost, url, body, nil), "sending reply")
}

func (c *Client) do(ctx context.Context, method, url string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("discord API returned status %s", resp.Status)
	}

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return nil
}
