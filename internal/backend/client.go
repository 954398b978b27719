// Package backend is the HTTP client for the incident API. Every remote
// failure is mapped onto the shared error taxonomy so callers branch on
// sentinel identity instead of status codes or message text.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	apperrors "github.com/lamont-llp/safeguard-eldos-sub000/pkg/errors"
)

const (
	requestTimeout = 15 * time.Second

	// tokenRefreshWindow is how close to expiry a session token may get
	// before Authenticated starts reporting false.
	tokenRefreshWindow = 60 * time.Second
)

// NewIncident is the payload for reporting an incident.
type NewIncident struct {
	Category    models.Category `json:"category" validate:"required"`
	Severity    models.Severity `json:"severity" validate:"required"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	Area        string          `json:"area,omitempty"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	IsUrgent    bool            `json:"is_urgent"`
}

// apiEnvelope matches the backend's response wrapper.
type apiEnvelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// API is the remote incident surface consumed by the sync layer.
type API interface {
	CreateIncident(ctx context.Context, input NewIncident) (*models.IncidentRecord, error)
	VerifyIncident(ctx context.Context, incidentID string) (*models.IncidentRecord, error)
	GetIncident(ctx context.Context, incidentID string) (*models.IncidentRecord, error)
	ListIncidentsNear(ctx context.Context, lat, lng float64, radiusM float64, since time.Duration) ([]models.IncidentRecord, error)
}

// Client talks to the incident API over HTTP.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// NewClient constructs a Client rooted at baseURL. token is the session JWT
// and may be empty for anonymous reads.
func NewClient(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		http.SetAuthToken(token)
	}

	return &Client{http: http, log: log}
}

// SetToken swaps the session token, for refresh flows.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// Authenticated reports whether the client holds a token that is not within
// the refresh window of its expiry. The token signature is not checked here;
// the server remains the authority and this only avoids doomed requests.
func (c *Client) Authenticated() bool {
	token := c.http.Token
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		c.log.Debug("session token unparseable", zap.Error(err))
		return false
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return false
	}
	return time.Until(expiry.Time) > tokenRefreshWindow
}

// CreateIncident reports a new incident and returns the canonical record.
func (c *Client) CreateIncident(ctx context.Context, input NewIncident) (*models.IncidentRecord, error) {
	var envelope apiEnvelope[models.IncidentRecord]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(&envelope).
		Post("/api/incidents")
	if appErr := c.check(resp, err, "create incident"); appErr != nil {
		return nil, appErr
	}
	return &envelope.Data, nil
}

// VerifyIncident adds the caller's confirmation to an incident.
func (c *Client) VerifyIncident(ctx context.Context, incidentID string) (*models.IncidentRecord, error) {
	var envelope apiEnvelope[models.IncidentRecord]

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", incidentID).
		SetResult(&envelope).
		Post("/api/incidents/{id}/verify")
	if appErr := c.check(resp, err, "verify incident"); appErr != nil {
		return nil, appErr
	}
	return &envelope.Data, nil
}

// GetIncident fetches a single incident by ID.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (*models.IncidentRecord, error) {
	var envelope apiEnvelope[models.IncidentRecord]

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", incidentID).
		SetResult(&envelope).
		Get("/api/incidents/{id}")
	if appErr := c.check(resp, err, "get incident"); appErr != nil {
		return nil, appErr
	}
	return &envelope.Data, nil
}

// ListIncidentsNear fetches incidents within radiusM metres of the given
// point, reported within the trailing window.
func (c *Client) ListIncidentsNear(ctx context.Context, lat, lng float64, radiusM float64, since time.Duration) ([]models.IncidentRecord, error) {
	var envelope apiEnvelope[[]models.IncidentRecord]

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":         fmt.Sprintf("%.6f", lat),
			"lng":         fmt.Sprintf("%.6f", lng),
			"radius_m":    fmt.Sprintf("%.0f", radiusM),
			"since_hours": fmt.Sprintf("%.0f", since.Hours()),
		}).
		SetResult(&envelope).
		Get("/api/incidents/nearby")
	if appErr := c.check(resp, err, "list incidents"); appErr != nil {
		return nil, appErr
	}
	return envelope.Data, nil
}

// check folds transport errors, HTTP status and the envelope error message
// into a single classified *AppError, or nil on success.
func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		classified := apperrors.Classify(0, err)
		c.log.Warn("request failed",
			zap.String("op", op),
			zap.String("code", classified.Code),
			zap.Error(err))
		return classified
	}
	if resp.IsError() {
		var failure apiEnvelope[json.RawMessage]
		_ = json.Unmarshal(resp.Body(), &failure)
		remote := fmt.Errorf("%s: %s", op, failure.Error)
		classified := apperrors.Classify(resp.StatusCode(), remote)
		c.log.Warn("request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode()),
			zap.String("code", classified.Code))
		return classified
	}
	return nil
}
