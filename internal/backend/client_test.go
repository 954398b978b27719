package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	apperrors "github.com/lamont-llp/safeguard-eldos-sub000/pkg/errors"
)

func appCode(t *testing.T, err error) string {
	t.Helper()

	appErr := apperrors.FromError(err)
	require.NotNil(t, appErr)
	return appErr.Code
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestCreateIncidentReturnsCanonicalRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/incidents", r.URL.Path)
		require.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))

		var input NewIncident
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		require.Equal(t, models.CategoryCrime, input.Category)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": models.IncidentRecord{
				ID:       "inc-77",
				Category: input.Category,
				Severity: input.Severity,
				Title:    input.Title,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "session-token", zap.NewNop())

	record, err := client.CreateIncident(context.Background(), NewIncident{
		Category:  models.CategoryCrime,
		Severity:  models.SeverityHigh,
		Title:     "Armed robbery on Main Road",
		Latitude:  -26.3054,
		Longitude: 27.9389,
	})
	require.NoError(t, err)
	require.Equal(t, "inc-77", record.ID)
	require.Equal(t, "Armed robbery on Main Road", record.Title)
}

func TestVerifyIncidentConflictIsDuplicateAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/incidents/inc-1/verify", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "verification already recorded",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", zap.NewNop())

	_, err := client.VerifyIncident(context.Background(), "inc-1")
	require.Equal(t, apperrors.ErrDuplicateAction.Code, appCode(t, err))
}

func TestGetIncidentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no such incident"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())

	_, err := client.GetIncident(context.Background(), "ghost")
	require.Equal(t, apperrors.ErrNotFound.Code, appCode(t, err))
}

func TestUnreachableServerIsNetworkUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse all connections

	client := NewClient(server.URL, "", zap.NewNop())

	_, err := client.GetIncident(context.Background(), "inc-1")
	require.Equal(t, apperrors.ErrNetworkUnavailable.Code, appCode(t, err))
}

func TestListIncidentsNearForwardsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/incidents/nearby", r.URL.Path)
		query := r.URL.Query()
		require.Equal(t, "-26.305400", query.Get("lat"))
		require.Equal(t, "27.938900", query.Get("lng"))
		require.Equal(t, "5000", query.Get("radius_m"))
		require.Equal(t, "24", query.Get("since_hours"))

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []models.IncidentRecord{
				{ID: "inc-1", Title: "a"},
				{ID: "inc-2", Title: "b"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())

	records, err := client.ListIncidentsNear(context.Background(), -26.3054, 27.9389, 5000, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "inc-1", records[0].ID)
}

func TestServerErrorClass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "upstream unavailable"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())

	_, err := client.GetIncident(context.Background(), "inc-1")
	require.Equal(t, apperrors.ErrServerError.Code, appCode(t, err))
}

func TestAuthenticatedTracksTokenExpiry(t *testing.T) {
	client := NewClient("http://localhost", "", zap.NewNop())
	require.False(t, client.Authenticated(), "no token")

	client.SetToken(signedToken(t, time.Hour))
	require.True(t, client.Authenticated())

	client.SetToken(signedToken(t, 30*time.Second))
	require.False(t, client.Authenticated(), "inside the refresh window")

	client.SetToken(signedToken(t, -time.Hour))
	require.False(t, client.Authenticated(), "expired")

	client.SetToken("not-a-jwt")
	require.False(t, client.Authenticated())
}
