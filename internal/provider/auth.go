package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	thttp "github.com/lakewatch/thermal-service/internal/http"
)

// expiryMargin is subtracted from the provider's expiration so a token is
// never used in its final minutes.
const expiryMargin = 5 * time.Minute

// TokenCache shares a login token between processes.
type TokenCache interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Store(ctx context.Context, tok *oauth2.Token) error
	Clear(ctx context.Context) error
}

// MemoryTokenCache keeps the token in process.
type MemoryTokenCache struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

func (c *MemoryTokenCache) Load(context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok, nil
}

func (c *MemoryTokenCache) Store(_ context.Context, tok *oauth2.Token) error {
	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()
	return nil
}

func (c *MemoryTokenCache) Clear(context.Context) error {
	c.mu.Lock()
	c.tok = nil
	c.mu.Unlock()
	return nil
}

// RedisTokenCache stores the token under one key with a TTL matching its
// expiry.
type RedisTokenCache struct {
	client redis.UniversalClient
	key    string
}

func NewRedisTokenCache(client redis.UniversalClient, username string) *RedisTokenCache {
	return &RedisTokenCache{client: client, key: "thermal-service:provider-token:" + username}
}

func (c *RedisTokenCache) Load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (c *RedisTokenCache) Store(ctx context.Context, tok *oauth2.Token) error {
	ttl := time.Until(tok.Expiry)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, raw, ttl).Err()
}

func (c *RedisTokenCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

// loginSource is an oauth2.TokenSource backed by POST /login with basic
// auth. Tokens are cached until shortly before they expire.
type loginSource struct {
	http     *thttp.Client
	baseURL  string
	username string
	password string
	cache    TokenCache
	now      func() time.Time

	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *loginSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid(s.tok) {
		return s.tok, nil
	}

	ctx := context.Background()
	if s.cache != nil {
		cached, err := s.cache.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Provider token cache unavailable")
		} else if s.valid(cached) {
			s.tok = cached
			return cached, nil
		}
	}

	tok, err := s.login(ctx)
	if err != nil {
		return nil, err
	}
	s.tok = tok
	if s.cache != nil {
		if err := s.cache.Store(ctx, tok); err != nil {
			log.Warn().Err(err).Msg("Failed to cache provider token")
		}
	}
	return tok, nil
}

func (s *loginSource) valid(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || s.now().Add(expiryMargin).Before(tok.Expiry)
}

// invalidate drops the cached token after the provider rejected it.
func (s *loginSource) invalidate(ctx context.Context) {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear cached provider token")
		}
	}
}

func (s *loginSource) login(ctx context.Context) (*oauth2.Token, error) {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.username+":"+s.password)))

	resp, err := s.http.Do(ctx, thttp.Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/login",
		Header: header,
	})
	if err != nil {
		return nil, classify(err, "login")
	}
	defer resp.Body.Close()

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.TransientProvider(err, "decode login response")
	}
	if body.Token == "" {
		return nil, apperrors.TransientProvider(nil, "login response carried no token")
	}
	tokenType := body.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	log.Debug().Time("expires", body.Expiration).Msg("Provider login succeeded")
	return &oauth2.Token{AccessToken: body.Token, TokenType: tokenType, Expiry: body.Expiration}, nil
}
