package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendPostsNotificationPayload(t *testing.T) {
	var got fcmMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key=server-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(fcmResponse{Success: 1})
	}))
	defer server.Close()

	provider, err := NewFCMProvider("server-key", "device-token", zap.NewNop(), WithEndpoint(server.URL))
	require.NoError(t, err)

	err = provider.Send(context.Background(), Message{
		Title:  "Robbery reported nearby",
		Body:   "Armed robbery on Main Road, 400m away",
		Tag:    "incident-inc-1",
		Target: "/incidents/inc-1",
		Sound:  true,
	})
	require.NoError(t, err)

	require.Equal(t, "device-token", got.To)
	require.Equal(t, "Robbery reported nearby", got.Notification.Title)
	require.Equal(t, "/incidents/inc-1", got.Notification.ClickAction)
	require.Equal(t, "normal", got.Priority)
	require.Equal(t, "default", got.Notification.Sound)
}

func TestSendUrgentUsesHighPriority(t *testing.T) {
	var got fcmMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(fcmResponse{Success: 1})
	}))
	defer server.Close()

	provider, err := NewFCMProvider("k", "device-token", zap.NewNop(), WithEndpoint(server.URL))
	require.NoError(t, err)

	require.NoError(t, provider.Send(context.Background(), Message{Title: "Gunshots", Urgent: true}))
	require.Equal(t, "high", got.Priority)
	require.Zero(t, got.TimeToLive)
}

func TestSendSurfacesPerTokenError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fcmResponse{
			Failure: 1,
			Results: []struct {
				MessageID string `json:"message_id,omitempty"`
				Error     string `json:"error,omitempty"`
			}{{Error: "NotRegistered"}},
		})
	}))
	defer server.Close()

	provider, err := NewFCMProvider("k", "stale-token", zap.NewNop(), WithEndpoint(server.URL))
	require.NoError(t, err)

	err = provider.Send(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	require.Equal(t, FailurePermissionDenied, ClassifyFailure(err))
}

func TestPermissionFollowsDeviceToken(t *testing.T) {
	provider, err := NewFCMProvider("k", "", zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, PermissionDefault, provider.Permission())

	state, err := provider.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, PermissionDenied, state)

	granted, err := NewFCMProvider("k", "device-token", zap.NewNop())
	require.NoError(t, err)
	state, err = granted.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, PermissionGranted, state)
}

func TestClassifyFailure(t *testing.T) {
	require.Equal(t, FailurePermissionDenied, ClassifyFailure(errors.New("push: permission revoked")))
	require.Equal(t, FailurePlatformRestriction, ClassifyFailure(errors.New("device quota exceeded")))
	require.Equal(t, FailureMalformedPayload, ClassifyFailure(errors.New("payload invalid")))
	require.Equal(t, FailureUnknown, ClassifyFailure(errors.New("something else")))
	require.Empty(t, ClassifyFailure(nil))
}
