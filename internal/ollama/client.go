package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	langollama "github.com/tmc/langchaingo/llms/ollama"
)

// ErrOffline is returned by every call when the client was constructed in
// offline mode. Callers treat it like any backend failure and take their
// fallback branch.
var ErrOffline = errors.New("ollama backend is offline")

type Config struct {
	Host           string
	ChatModel      string
	CommandModel   string
	EmbeddingModel string
	FallbackModels []string
	Timeout        time.Duration
	Offline        bool
}

// Exchange is one few-shot example pair injected ahead of the live turn.
type Exchange struct {
	User      string
	Assistant string
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	mu       sync.Mutex
	llms     map[string]*langollama.LLM
	tags     []string
	tagsErr  error
	probed   bool
	resolved map[string]string
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		llms:       map[string]*langollama.LLM{},
		resolved:   map[string]string{},
	}
}

func (c *Client) ChatModel() string      { return c.cfg.ChatModel }
func (c *Client) CommandModel() string   { return c.cfg.CommandModel }
func (c *Client) EmbeddingModel() string { return c.cfg.EmbeddingModel }

func (c *Client) llm(model, format string) (*langollama.LLM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := model + "|" + format
	if cached, ok := c.llms[key]; ok {
		return cached, nil
	}
	options := []langollama.Option{
		langollama.WithModel(model),
		langollama.WithServerURL(c.cfg.Host),
	}
	if format != "" {
		options = append(options, langollama.WithFormat(format))
	}
	llm, err := langollama.New(options...)
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client for %s: %w", model, err)
	}
	c.llms[key] = llm
	return llm, nil
}

// Chat runs a plain single-turn completion against the given model.
func (c *Client) Chat(ctx context.Context, model, system, user string) (string, error) {
	return c.generate(ctx, model, "", system, nil, user, nil)
}

// ChatJSON runs a completion with Ollama's JSON output format, injecting the
// few-shot exchanges between the system prompt and the live turn.
func (c *Client) ChatJSON(ctx context.Context, model, system string, shots []Exchange, user string) (string, error) {
	return c.generate(ctx, model, "json", system, shots, user, nil)
}

// Stream runs a completion delivering tokens to onToken as they arrive and
// returns the full response once the stream ends.
func (c *Client) Stream(ctx context.Context, model, system, user string, onToken func(string)) (string, error) {
	return c.generate(ctx, model, "", system, nil, user, onToken)
}

func (c *Client) generate(ctx context.Context, model, format, system string, shots []Exchange, user string, onToken func(string)) (string, error) {
	if c.cfg.Offline {
		return "", ErrOffline
	}
	llm, err := c.llm(model, format)
	if err != nil {
		return "", err
	}

	messages := make([]llms.MessageContent, 0, 2+2*len(shots))
	if strings.TrimSpace(system) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, shot := range shots {
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeHuman, shot.User),
			llms.TextParts(llms.ChatMessageTypeAI, shot.Assistant),
		)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, user))

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var callOptions []llms.CallOption
	if onToken != nil {
		callOptions = append(callOptions, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onToken(string(chunk))
			return nil
		}))
	}

	resp, err := llm.GenerateContent(callCtx, messages, callOptions...)
	if err != nil {
		return "", fmt.Errorf("could not complete ollama request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.Offline {
		return nil, ErrOffline
	}
	llm, err := c.llm(c.cfg.EmbeddingModel, "")
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	vectors, err := llm.CreateEmbedding(callCtx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("could not embed text: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedding model returned an empty vector")
	}
	return vectors[0], nil
}

// Tags lists installed model tags via /api/tags. The langchaingo client has
// no tags endpoint, so this talks to the server directly. The result is
// memoized for the life of the client.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	if c.cfg.Offline {
		return nil, ErrOffline
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probed {
		return c.tags, c.tagsErr
	}
	c.probed = true
	c.tags, c.tagsErr = c.fetchTags(ctx)
	return c.tags, c.tagsErr
}

func (c *Client) fetchTags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("could not build tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach ollama server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("could not decode tags response: %w", err)
	}
	tags := make([]string, 0, len(payload.Models))
	for _, model := range payload.Models {
		if strings.TrimSpace(model.Name) != "" {
			tags = append(tags, model.Name)
		}
	}
	return tags, nil
}

// ResolveModel maps a wanted model to an installed tag: exact match first,
// then base-name match (tag before the colon), then the configured
// fallbacks, then the first installed tag. When the server cannot be
// reached the wanted model is returned unchanged so the first real call
// surfaces the error.
func (c *Client) ResolveModel(ctx context.Context, want string) string {
	c.mu.Lock()
	if cached, ok := c.resolved[want]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	tags, err := c.Tags(ctx)
	if err != nil || len(tags) == 0 {
		return want
	}

	got := resolveAgainst(want, tags, c.cfg.FallbackModels)
	c.mu.Lock()
	c.resolved[want] = got
	c.mu.Unlock()
	return got
}

func resolveAgainst(want string, tags, fallbacks []string) string {
	for _, tag := range tags {
		if tag == want {
			return tag
		}
	}
	wantBase := baseName(want)
	for _, tag := range tags {
		if baseName(tag) == wantBase {
			return tag
		}
	}
	for _, fallback := range fallbacks {
		for _, tag := range tags {
			if tag == fallback || baseName(tag) == baseName(fallback) {
				return tag
			}
		}
	}
	return tags[0]
}

func baseName(model string) string {
	if idx := strings.Index(model, ":"); idx > 0 {
		return model[:idx]
	}
	return model
}

// Healthy reports whether the server answered the tags probe.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Tags(ctx)
	return err == nil
}
