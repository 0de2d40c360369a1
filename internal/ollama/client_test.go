package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveAgainst(t *testing.T) {
	tags := []string{"llama2:7b-chat", "mistral:instruct", "nomic-embed-text:latest"}
	fallbacks := []string{"llama2:7b-chat", "mistral:instruct"}

	cases := []struct {
		name string
		want string
		got  string
	}{
		{"exact", "mistral:instruct", "mistral:instruct"},
		{"base name", "llama2:13b", "llama2:7b-chat"},
		{"fallback list", "qwen2:7b", "llama2:7b-chat"},
		{"latest suffix", "nomic-embed-text", "nomic-embed-text:latest"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveAgainst(tc.want, tags, fallbacks); got != tc.got {
				t.Fatalf("resolveAgainst(%q) = %q, want %q", tc.want, got, tc.got)
			}
		})
	}
}

func TestResolveAgainstLastResortIsFirstTag(t *testing.T) {
	got := resolveAgainst("missing:latest", []string{"only:one"}, nil)
	if got != "only:one" {
		t.Fatalf("expected first installed tag, got %q", got)
	}
}

func TestTagsProbeIsMemoized(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama2:7b-chat"}]}`))
	}))
	defer server.Close()

	client := New(Config{Host: server.URL})
	for i := 0; i < 3; i++ {
		tags, err := client.Tags(context.Background())
		if err != nil {
			t.Fatalf("Tags failed: %v", err)
		}
		if len(tags) != 1 || tags[0] != "llama2:7b-chat" {
			t.Fatalf("unexpected tags: %v", tags)
		}
	}
	if hits != 1 {
		t.Fatalf("expected one probe, server saw %d", hits)
	}
}

func TestOfflineClientFailsFast(t *testing.T) {
	client := New(Config{Host: "http://localhost:11434", Offline: true})
	if _, err := client.Chat(context.Background(), "m", "s", "u"); err != ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if _, err := client.Embed(context.Background(), "text"); err != ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if client.Healthy(context.Background()) {
		t.Fatal("offline client must not report healthy")
	}
}
