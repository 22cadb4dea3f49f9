package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatus_SendsPatch(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewOrderClient(func() string { return server.URL + "/" }, time.Second)
	require.NoError(t, c.UpdateStatus(context.Background(), "ORD-1-abc123", "RESERVED"))

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/orders/ORD-1-abc123/status", gotPath)
	assert.Equal(t, "RESERVED", gotBody["status"])
}

func TestUpdateStatus_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
	}{
		{"not found", http.StatusNotFound, ErrOrderNotFound},
		{"conflict", http.StatusConflict, ErrStatusConflict},
		{"server error", http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			c := NewOrderClient(func() string { return server.URL }, time.Second)
			err := c.UpdateStatus(context.Background(), "ORD-1", "RESERVED")
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestUpdateStatus_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewOrderClient(func() string { return server.URL }, 20*time.Millisecond)
	assert.Error(t, c.UpdateStatus(context.Background(), "ORD-1", "RESERVED"))
}
