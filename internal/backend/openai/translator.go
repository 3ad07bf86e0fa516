// Package openai implements the vendor translation backend on top of an
// OpenAI-compatible chat-completion API. There is no on-device model to
// fetch here, so "downloading" a model verifies the remote model is
// reachable and records the languages in a durable manifest; the
// manifest then answers IsModelDownloaded.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/patlar104/GlobalTranslation/internal/translation"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

type Config struct {
	APIKey       string
	APIURL       string // optional, for OpenAI-compatible providers
	Model        string
	ManifestPath string
}

type Backend struct {
	client *goopenai.Client
	model  string

	mu           sync.Mutex
	manifestPath string
	verified     map[string]struct{}
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(cfg.ManifestPath) == "" {
		return nil, fmt.Errorf("manifest path is required")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientCfg.BaseURL = cfg.APIURL
	}

	b := &Backend{
		client:       goopenai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		manifestPath: cfg.ManifestPath,
		verified:     make(map[string]struct{}),
	}
	if err := b.loadManifest(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) NewTranslator(pair translation.PairKey) (translation.Translator, error) {
	return &apiTranslator{
		client: b.client,
		model:  b.model,
		pair:   pair,
	}, nil
}

// DownloadModel verifies the configured remote model exists, then marks
// both languages of the pair available in the manifest. Network failures
// surface as-is so the caller's retry policy applies.
func (b *Backend) DownloadModel(ctx context.Context, pair translation.PairKey, conditions translation.DownloadConditions) error {
	if _, err := b.client.GetModel(ctx, b.model); err != nil {
		return fmt.Errorf("verify model %s: %w", b.model, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.verified[pair.Source()] = struct{}{}
	b.verified[pair.Target()] = struct{}{}
	return b.saveManifestLocked()
}

func (b *Backend) IsModelDownloaded(ctx context.Context, language string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.verified[language]
	return ok, nil
}

func (b *Backend) DeleteModel(ctx context.Context, language string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.verified, language)
	return b.saveManifestLocked()
}

func (b *Backend) loadManifest() error {
	data, err := os.ReadFile(b.manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read model manifest: %w", err)
	}

	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		log.Warn("Corrupt model manifest %s, starting empty: %v", b.manifestPath, err)
		return nil
	}
	for _, code := range codes {
		b.verified[code] = struct{}{}
	}
	return nil
}

func (b *Backend) saveManifestLocked() error {
	codes := make([]string, 0, len(b.verified))
	for code := range b.verified {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	data, err := json.MarshalIndent(codes, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.manifestPath), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	if err := os.WriteFile(b.manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("write model manifest: %w", err)
	}
	return nil
}

type apiTranslator struct {
	client *goopenai.Client
	model  string
	pair   translation.PairKey
}

func (t *apiTranslator) Translate(ctx context.Context, text string) (string, error) {
	system := fmt.Sprintf(
		"You are a translation engine. Translate the user's text from %s to %s. Return only the translation, without quotes or explanations.",
		t.pair.Source(), t.pair.Target(),
	)

	resp, err := t.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: t.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (t *apiTranslator) Close() error {
	return nil
}
