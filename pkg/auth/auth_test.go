package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testCreds() Credentials {
	return Credentials{
		Username:     "alice",
		Password:     "s3cret",
		ClientID:     "loader",
		ClientSecret: "client-secret",
	}
}

func TestPasswordGrant_Token(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if r.URL.Path != "/authorize/oauth2/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		id, secret, ok := r.BasicAuth()
		if !ok || id != "loader" || secret != "client-secret" {
			t.Errorf("basic auth = %q, %q, %v", id, secret, ok)
		}
		if got := r.Header.Get("api-version"); got != "2" {
			t.Errorf("api-version = %q; want 2", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q; want application/json", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "password" ||
			r.PostForm.Get("username") != "alice" ||
			r.PostForm.Get("password") != "s3cret" {
			t.Errorf("form = %v", r.PostForm)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":1799}`))
	}))
	defer server.Close()

	grant := NewPasswordGrant(server.URL+"/authorize/oauth2/token", testCreds(), WithHTTPClient(server.Client()))
	token, err := grant.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "tok-123" {
		t.Errorf("Token() = %q; want tok-123", token)
	}
}

func TestPasswordGrant_BasicAuthUnescaped(t *testing.T) {
	tests := []struct {
		name, id, secret string
	}{
		{"plain", "loader", "client-secret"},
		{"space and reserved", "my client", "a+b/c="},
		{"percent and colon", "id%20x", "s:e%cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				header = r.Header.Get("Authorization")
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
			}))
			defer server.Close()

			creds := testCreds()
			creds.ClientID, creds.ClientSecret = tt.id, tt.secret
			if _, err := NewPasswordGrant(server.URL, creds).Token(context.Background()); err != nil {
				t.Fatalf("Token() error = %v", err)
			}

			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(tt.id+":"+tt.secret))
			if header != want {
				t.Errorf("Authorization = %q; want %q", header, want)
			}
		})
	}
}

func TestPasswordGrant_Errors(t *testing.T) {
	t.Run("rejected credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		_, err := NewPasswordGrant(server.URL, testCreds()).Token(context.Background())
		var authErr *Error
		if !errors.As(err, &authErr) {
			t.Fatalf("Token() error = %v; want *auth.Error", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("StatusCode = %d; want 401", authErr.StatusCode)
		}
	})

	t.Run("missing access token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
		}))
		defer server.Close()

		_, err := NewPasswordGrant(server.URL, testCreds()).Token(context.Background())
		var authErr *Error
		if !errors.As(err, &authErr) {
			t.Fatalf("Token() error = %v; want *auth.Error", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := NewPasswordGrant(url, testCreds()).Token(context.Background())
		var authErr *Error
		if !errors.As(err, &authErr) {
			t.Fatalf("Token() error = %v; want *auth.Error", err)
		}
		if authErr.StatusCode != 0 {
			t.Errorf("StatusCode = %d; want 0", authErr.StatusCode)
		}
		if authErr.Error() == "" {
			t.Error("empty error message")
		}
	})
}
