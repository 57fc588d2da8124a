package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestVerifier(t *testing.T, handler http.HandlerFunc) *PlatformVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewPlatformVerifier(server.Client(), logger, server.URL+"/", "anon-key")
}

func TestPlatformVerifier_ValidToken_ReturnsUserID(t *testing.T) {
	v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("パス = %s, want /auth/v1/user", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer good-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"3f1c6a9e-7a8b-4c1d-9e2f-000000000001","email":"speaker@example.com"}`))
	})

	userID, err := v.Verify(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "3f1c6a9e-7a8b-4c1d-9e2f-000000000001" {
		t.Errorf("userID = %q", userID)
	}
}

func TestPlatformVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		handler http.HandlerFunc
	}{
		{
			name:  "401応答",
			token: "expired",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name:  "IDを含まない応答",
			token: "odd",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
		},
		{
			name:  "空トークンはAPIを呼ばない",
			token: "",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("auth api should not be called for empty token")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, tt.handler)
			_, err := v.Verify(context.Background(), tt.token)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestPlatformVerifier_TransportError_IsNotUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	v := NewPlatformVerifier(http.DefaultClient, slog.New(slog.NewJSONHandler(io.Discard, nil)), url, "anon")
	_, err := v.Verify(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("transport errors should not be reported as ErrUnauthorized")
	}
}

func TestStaticVerifier_ReturnsFixedUser(t *testing.T) {
	v := NewStaticVerifier("dev-user")

	for _, token := range []string{"", "anything"} {
		userID, err := v.Verify(context.Background(), token)
		if err != nil || userID != "dev-user" {
			t.Errorf("Verify(%q) = %q, %v; want dev-user, nil", token, userID, err)
		}
	}
}
