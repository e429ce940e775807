// Package streamchat wraps the hosted chat/video provider's SDK. Only two
// calls are needed by the backend: registering (upserting) a user so the
// provider knows their display name and avatar, and minting a user token the
// frontend exchanges with the provider directly.
package streamchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	stream "github.com/GetStream/stream-chat-go/v5"

	"github.com/tbourn/go-lingo-backend/internal/config"
)

// ErrChatDisabled is returned by the no-op provider when no credentials are configured.
var ErrChatDisabled = errors.New("streamchat: provider not configured")

// Provider is the narrow surface the services depend on.
type Provider interface {
	UpsertUser(ctx context.Context, id, name, imageURL string) error
	CreateToken(userID string) (string, error)
}

// Client shares one SDK client process-wide, built on first use.
type Client struct {
	apiKey  string
	secret  string
	baseURL string
	http    *http.Client

	once    sync.Once
	sdk     *stream.Client
	initErr error
}

// New returns a Client for cfg, or a Noop provider when credentials are absent.
func New(cfg config.StreamConfig) Provider {
	if !cfg.Enabled() {
		return Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return NewClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL, &http.Client{Timeout: timeout})
}

// NewClient builds a Client. An empty baseURL keeps the SDK default and a
// nil httpClient keeps the SDK's transport.
func NewClient(apiKey, apiSecret, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		apiKey:  apiKey,
		secret:  apiSecret,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// client initialises the SDK once; later calls return the same result.
func (c *Client) client() (*stream.Client, error) {
	c.once.Do(func() {
		sdk, err := stream.NewClient(c.apiKey, c.secret)
		if err != nil {
			c.initErr = fmt.Errorf("streamchat: init: %w", err)
			return
		}
		if c.baseURL != "" {
			sdk.BaseURL = c.baseURL
		}
		if c.http != nil {
			sdk.HTTP = c.http
		}
		c.sdk = sdk
	})
	return c.sdk, c.initErr
}

// CreateToken signs a non-expiring user token for userID.
func (c *Client) CreateToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("streamchat: empty user id")
	}
	sdk, err := c.client()
	if err != nil {
		return "", err
	}
	return sdk.CreateToken(userID, time.Time{})
}

// UpsertUser creates or updates the provider-side user record.
func (c *Client) UpsertUser(ctx context.Context, id, name, imageURL string) error {
	sdk, err := c.client()
	if err != nil {
		return err
	}
	if _, err := sdk.UpsertUser(ctx, &stream.User{ID: id, Name: name, Image: imageURL}); err != nil {
		return fmt.Errorf("streamchat: upsert user: %w", err)
	}
	return nil
}

// Noop is used when the provider is not configured. Upserts succeed silently
// so signup keeps working; tokens cannot be issued.
type Noop struct{}

func (Noop) UpsertUser(context.Context, string, string, string) error { return nil }

func (Noop) CreateToken(string) (string, error) { return "", ErrChatDisabled }
