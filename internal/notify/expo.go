package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tOgg1/spark/internal/logging"
)

// DefaultExpoURL is the Expo push send endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

const expoBodyLimit = 178

// ErrNoPushToken means the recipient has not registered a device.
var ErrNoPushToken = errors.New("recipient has no push token")

// TokenResolver looks up the push token registered for a user.
type TokenResolver interface {
	PushToken(ctx context.Context, userID string) (string, error)
}

// ExpoOption configures an Expo notifier.
type ExpoOption func(*Expo)

// WithExpoURL overrides the push endpoint.
func WithExpoURL(url string) ExpoOption {
	return func(e *Expo) {
		if url != "" {
			e.url = url
		}
	}
}

// WithHTTPClient sets the client used for push requests.
func WithHTTPClient(client *http.Client) ExpoOption {
	return func(e *Expo) {
		if client != nil {
			e.client = client
		}
	}
}

// WithAccessToken sets the bearer token for projects with enhanced push security.
func WithAccessToken(token string) ExpoOption {
	return func(e *Expo) {
		e.accessToken = token
	}
}

// Expo sends notifications through the Expo push service.
type Expo struct {
	url         string
	accessToken string
	client      *http.Client
	tokens      TokenResolver
	lookups     singleflight.Group
	logger      zerolog.Logger
}

// NewExpo creates an Expo notifier resolving device tokens with tokens.
func NewExpo(tokens TokenResolver, opts ...ExpoOption) *Expo {
	e := &Expo{
		url:    DefaultExpoURL,
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
		logger: logging.Component("notify.expo"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoError is a push ticket or request rejected by the Expo service.
type ExpoError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ExpoError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("expo push rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("expo push rejected (%d): %s", e.StatusCode, e.Message)
}

// Notify implements Notifier.
func (e *Expo) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	token, err := e.resolve(ctx, n.RecipientID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal([]expoMessage{{
		To:    token,
		Title: n.Title,
		Body:  truncate(n.Body, expoBodyLimit),
		Sound: "default",
		Data: map[string]string{
			"conversation_id": n.ConversationID,
			"sender_id":       n.SenderID,
		},
	}})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}

	var decoded expoResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode push response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		expoErr := &ExpoError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if len(decoded.Errors) > 0 {
			expoErr.Code = decoded.Errors[0].Code
			expoErr.Message = decoded.Errors[0].Message
		}
		return expoErr
	}
	for _, ticket := range decoded.Data {
		if ticket.Status == "error" {
			return &ExpoError{StatusCode: resp.StatusCode, Code: ticket.Details.Error, Message: ticket.Message}
		}
	}

	e.logger.Debug().
		Str("recipient", n.RecipientID).
		Str("token", logging.Redact(token)).
		Str("conversation_id", n.ConversationID).
		Msg("push notification sent")
	return nil
}

// resolve looks up a token, sharing concurrent lookups for the same user.
func (e *Expo) resolve(ctx context.Context, userID string) (string, error) {
	if e.tokens == nil {
		return "", ErrNoPushToken
	}
	v, err, _ := e.lookups.Do(userID, func() (any, error) {
		return e.tokens.PushToken(ctx, userID)
	})
	if err != nil {
		return "", fmt.Errorf("resolve push token for %s: %w", userID, err)
	}
	token, _ := v.(string)
	if token == "" {
		return "", ErrNoPushToken
	}
	return token, nil
}
