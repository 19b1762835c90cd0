// Package store persists per-lead conversation snapshots between turns.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
)

var (
	ErrSnapshotNotFound = errors.New("conversation snapshot not found")
	ErrInvalidLead      = errors.New("lead id is empty")
)

const (
	defaultStoreKeyPrefix = "inmo:lead:"
	defaultStoreTTL       = 72 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// Store is the snapshot persistence contract used by the conversation entry
// point.
type Store interface {
	Load(ctx context.Context, leadID string) (contractx.AgentContext, error)
	Save(ctx context.Context, actx contractx.AgentContext) error
	Delete(ctx context.Context, leadID string) error
}

var (
	_ Store                = (*UpstashRedisStore)(nil)
	_ contractx.MemoryStore = (*UpstashRedisStore)(nil)
)

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists conversation snapshots in Upstash Redis via
// its REST endpoint.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       defaultStoreTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.httpClient == nil {
		store.httpClient = &http.Client{
			Timeout: timeout,
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, leadID string) (contractx.AgentContext, error) {
	key, err := s.redisKey(leadID)
	if err != nil {
		return contractx.AgentContext{}, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return contractx.AgentContext{}, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return contractx.AgentContext{}, ErrSnapshotNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return contractx.AgentContext{}, fmt.Errorf("decode snapshot payload: %w", err)
	}

	var actx contractx.AgentContext
	if err := json.Unmarshal([]byte(encoded), &actx); err != nil {
		return contractx.AgentContext{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if strings.TrimSpace(actx.LeadID) == "" {
		return contractx.AgentContext{}, fmt.Errorf("invalid snapshot loaded from store: %w", ErrInvalidLead)
	}

	return actx, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, actx contractx.AgentContext) error {
	key, err := s.redisKey(actx.LeadID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(actx)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}

	return nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, leadID string) error {
	key, err := s.redisKey(leadID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

// ReadSummary returns the compounding conversation summary for a lead, or
// "" when none exists yet.
func (s *UpstashRedisStore) ReadSummary(ctx context.Context, leadID string) (string, error) {
	key, err := s.summaryKey(leadID)
	if err != nil {
		return "", err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return "", err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", nil
	}

	var summary string
	if err := json.Unmarshal(result, &summary); err != nil {
		return "", fmt.Errorf("decode summary payload: %w", err)
	}
	return summary, nil
}

func (s *UpstashRedisStore) WriteSummary(ctx context.Context, leadID string, summary string) error {
	key, err := s.summaryKey(leadID)
	if err != nil {
		return err
	}

	cmd := []any{"SET", key, summary}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashRedisStore) summaryKey(leadID string) (string, error) {
	if strings.TrimSpace(leadID) == "" {
		return "", ErrInvalidLead
	}
	return strings.TrimSpace(s.keyPrefix) + leadID + ":summary", nil
}

func (s *UpstashRedisStore) redisKey(leadID string) (string, error) {
	if strings.TrimSpace(leadID) == "" {
		return "", ErrInvalidLead
	}
	prefix := strings.TrimSpace(s.keyPrefix)
	return prefix + leadID + ":context", nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
