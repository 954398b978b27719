package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultEndpoint = "https://fcm.googleapis.com/fcm/send"
	sendTimeout     = 30 * time.Second
	messageTTL      = 3600 // seconds
)

type fcmMessage struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Priority     string            `json:"priority"`
	TimeToLive   int               `json:"time_to_live,omitempty"`
}

type fcmNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Tag         string `json:"tag,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
	Sound       string `json:"sound,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"results"`
}

// FCMProvider sends pushes through the FCM HTTP endpoint to this device's
// registration token.
type FCMProvider struct {
	http  *resty.Client
	token string
	log   *zap.Logger

	mu         sync.Mutex
	permission PermissionState
}

// FCMOption customises the provider.
type FCMOption func(*FCMProvider)

// WithEndpoint overrides the FCM endpoint, used by tests.
func WithEndpoint(url string) FCMOption {
	return func(p *FCMProvider) {
		p.http.SetBaseURL(url)
	}
}

// NewFCMProvider constructs a provider for the given server key and device
// registration token.
func NewFCMProvider(serverKey, deviceToken string, log *zap.Logger, opts ...FCMOption) (*FCMProvider, error) {
	if serverKey == "" {
		return nil, errors.New("push: server key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	provider := &FCMProvider{
		http: resty.New().
			SetBaseURL(defaultEndpoint).
			SetTimeout(sendTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", "key="+serverKey),
		token:      deviceToken,
		log:        log,
		permission: PermissionDefault,
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider, nil
}

// RequestPermission resolves to granted when a device token is present. The
// actual platform prompt happens in the embedding shell; this reflects its
// outcome.
func (p *FCMProvider) RequestPermission(context.Context) (PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == "" {
		p.permission = PermissionDenied
		return p.permission, nil
	}
	p.permission = PermissionGranted
	return p.permission, nil
}

// Permission returns the last resolved permission state.
func (p *FCMProvider) Permission() PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.permission
}

// Send posts the message to FCM and surfaces per-token errors.
func (p *FCMProvider) Send(ctx context.Context, msg Message) error {
	if p.token == "" {
		return errors.New("push: no device token, permission not granted")
	}

	payload := fcmMessage{
		To: p.token,
		Notification: fcmNotification{
			Title:       msg.Title,
			Body:        msg.Body,
			Tag:         msg.Tag,
			ClickAction: msg.Target,
		},
		Data:       msg.Data,
		Priority:   "normal",
		TimeToLive: messageTTL,
	}
	if msg.Urgent {
		payload.Priority = "high"
		payload.TimeToLive = 0
	}
	if msg.Sound {
		payload.Notification.Sound = "default"
	}
	if msg.RequireInteraction {
		if payload.Data == nil {
			payload.Data = map[string]string{}
		}
		payload.Data["require_interaction"] = "true"
	}

	var result fcmResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post("")
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push: send rejected with status %d", resp.StatusCode())
	}
	if result.Failure > 0 && len(result.Results) > 0 && result.Results[0].Error != "" {
		return fmt.Errorf("push: delivery failed: %s", result.Results[0].Error)
	}

	p.log.Debug("push delivered", zap.String("tag", msg.Tag))
	return nil
}

// NopProvider satisfies Provider when no push channel is configured.
type NopProvider struct{}

func (NopProvider) RequestPermission(context.Context) (PermissionState, error) {
	return PermissionDenied, nil
}

func (NopProvider) Permission() PermissionState { return PermissionDenied }

func (NopProvider) Send(context.Context, Message) error {
	return errors.New("push: no provider configured")
}
