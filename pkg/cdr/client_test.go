package cdr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofhir/cdrloader/pkg/resource"
)

func TestIfNoneExist(t *testing.T) {
	if got := IfNoneExist(resource.Resource{URL: "http://x/vs"}); got != "url=http://x/vs" {
		t.Errorf("IfNoneExist() = %q", got)
	}
	if got := IfNoneExist(resource.Resource{}); got != "url=" {
		t.Errorf("IfNoneExist() = %q; want url=", got)
	}
}

func TestClient_Create(t *testing.T) {
	body := `{"resourceType":"ValueSet","url":"http://x/vs"}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/store/fhir/org-1/ValueSet" {
			t.Errorf("path = %s", r.URL.Path)
		}
		want := map[string]string{
			"Authorization": "Bearer tok",
			"Accept":        "application/fhir+json;fhirVersion=3.0",
			"Content-Type":  "application/fhir+json;fhirVersion=3.0",
			"api-version":   "1",
			"If-None-Exist": "url=http://x/vs",
		}
		for k, v := range want {
			if got := r.Header.Get(k); got != v {
				t.Errorf("header %s = %q; want %q", k, got, v)
			}
		}
		got, _ := io.ReadAll(r.Body)
		if string(got) != body {
			t.Errorf("body = %s; want verbatim resource", got)
		}

		w.Header().Set("Content-Type", "application/fhir+json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resourceType":"ValueSet","id":"x"}`))
	}))
	defer server.Close()

	r, err := resource.Parse([]byte(body), "vs.json")
	if err != nil {
		t.Fatal(err)
	}

	client := NewClient(server.URL+"/store/fhir/org-1", "application/fhir+json;fhirVersion=3.0",
		WithHTTPClient(server.Client()), WithTimeout(5*time.Second))
	resp, err := client.Create(context.Background(), "tok", r)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !resp.OK() || resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d; want 201", resp.StatusCode)
	}
	if resp.ID() != "x" {
		t.Errorf("ID() = %q; want x", resp.ID())
	}
}

func TestClient_CreateErrorBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantBody string
	}{
		{"operation outcome", http.StatusBadRequest, `{"issue":"dup"}`, `{"issue":"dup"}`},
		{"plain text", http.StatusBadGateway, "bad gateway", `"bad gateway"`},
		{"empty", http.StatusForbidden, "", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "application/fhir+json")
			resp, err := client.Create(context.Background(), "tok", resource.Resource{Type: "ValueSet", Raw: []byte(`{}`)})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if resp.OK() {
				t.Error("OK() = true; want false")
			}
			if resp.StatusCode != tt.status {
				t.Errorf("StatusCode = %d; want %d", resp.StatusCode, tt.status)
			}
			if string(resp.Body) != tt.wantBody {
				t.Errorf("Body = %s; want %s", resp.Body, tt.wantBody)
			}
			if resp.ID() != "" {
				t.Errorf("ID() = %q; want empty", resp.ID())
			}
		})
	}
}

func TestClient_CreateTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, "application/fhir+json")
	resp, err := client.Create(context.Background(), "tok", resource.Resource{Type: "CodeSystem", Raw: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if resp != nil {
		t.Errorf("Response = %+v; want nil", resp)
	}
}

func TestNewClient_Timeout(t *testing.T) {
	t.Run("caller client untouched", func(t *testing.T) {
		shared := &http.Client{Timeout: time.Minute}
		c := NewClient("http://cdr.local", "application/fhir+json", WithHTTPClient(shared), WithTimeout(5*time.Second))
		if shared.Timeout != time.Minute {
			t.Errorf("shared client Timeout = %v; want 1m", shared.Timeout)
		}
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("client Timeout = %v; want 5s", c.httpClient.Timeout)
		}
	})

	t.Run("option order", func(t *testing.T) {
		shared := &http.Client{}
		c := NewClient("http://cdr.local", "application/fhir+json", WithTimeout(5*time.Second), WithHTTPClient(shared))
		if c.httpClient.Timeout != 5*time.Second || shared.Timeout != 0 {
			t.Errorf("client/shared Timeout = %v/%v; want 5s/0", c.httpClient.Timeout, shared.Timeout)
		}
	})

	t.Run("nil client", func(t *testing.T) {
		c := NewClient("http://cdr.local", "application/fhir+json", WithHTTPClient(nil), WithTimeout(time.Second))
		if c.httpClient == nil || c.httpClient.Timeout != time.Second {
			t.Errorf("httpClient = %+v", c.httpClient)
		}
	})

	t.Run("zero keeps client timeout", func(t *testing.T) {
		shared := &http.Client{Timeout: time.Minute}
		c := NewClient("http://cdr.local", "application/fhir+json", WithHTTPClient(shared), WithTimeout(0))
		if c.httpClient.Timeout != time.Minute {
			t.Errorf("client Timeout = %v; want 1m", c.httpClient.Timeout)
		}
	})
}

func TestClient_CreateTruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Declares more than it sends, so the connection ends mid-body.
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"issue":`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "application/fhir+json")
	resp, err := client.Create(context.Background(), "tok", resource.Resource{Type: "ValueSet", Raw: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected read error")
	}
	if resp == nil {
		t.Fatal("Response = nil; want the received status")
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d; want 422", resp.StatusCode)
	}
	if string(resp.Body) != `"{\"issue\":"` {
		t.Errorf("Body = %s; want the partial body as a JSON string", resp.Body)
	}
}
