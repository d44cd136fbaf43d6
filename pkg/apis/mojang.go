package apis

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	mojangService     = "mojang"
	mojangTimeout     = 5 * time.Second
	mojangCacheTTL    = time.Hour
	mojangSessionHost = "https://sessionserver.mojang.com"
	mojangAPIHost     = "https://api.mojang.com"
)

var ignCleaner = regexp.MustCompile(`\W+`)

// MojangAccount is a resolved Minecraft account.
type MojangAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Mojang resolves Minecraft account names and UUIDs. Responses are cached
// for an hour per lookup key.
type Mojang struct {
	http        *retryablehttp.Client
	cache       *gocache.Cache
	log         *zap.Logger
	sessionHost string
	apiHost     string
}

// NewMojang creates a Mojang client with its own response cache.
func NewMojang(log *zap.Logger) *Mojang {
	return &Mojang{
		http:        newHTTPClient(mojangTimeout),
		cache:       gocache.New(mojangCacheTTL, 10*time.Minute),
		log:         log.Named(mojangService),
		sessionHost: mojangSessionHost,
		apiHost:     mojangAPIHost,
	}
}

// FetchProfile resolves a UUID to its account profile.
func (m *Mojang) FetchProfile(ctx context.Context, uuid string, useCache bool) (*MojangAccount, error) {
	key := cacheKey("profile", uuid)
	if useCache {
		if cached, ok := m.cache.Get(key); ok {
			return cached.(*MojangAccount), nil
		}
	}
	url := fmt.Sprintf("%s/session/minecraft/profile/%s", m.sessionHost, uuid)
	var account MojangAccount
	if err := requestJSON(ctx, m.http, m.log, mojangService, http.MethodGet, url, nil, &account); err != nil {
		return nil, err
	}
	if account.ID == "" || account.Name == "" {
		return nil, nil
	}
	m.cache.SetDefault(key, &account)
	return &account, nil
}

// FetchName resolves a UUID to the current account name, or "" when
// unknown.
func (m *Mojang) FetchName(ctx context.Context, uuid string, useCache bool) (string, error) {
	account, err := m.FetchProfile(ctx, uuid, useCache)
	if err != nil || account == nil {
		return "", err
	}
	return account.Name, nil
}

// ResolveIGN resolves an in-game name to its account. The name is
// normalized before lookup.
func (m *Mojang) ResolveIGN(ctx context.Context, ign string, useCache bool) (*MojangAccount, error) {
	ign = strings.ToLower(strings.TrimSpace(ignCleaner.ReplaceAllString(ign, "")))
	key := cacheKey("ign", ign)
	if useCache {
		if cached, ok := m.cache.Get(key); ok {
			return cached.(*MojangAccount), nil
		}
	}
	url := fmt.Sprintf("%s/users/profiles/minecraft/%s", m.apiHost, ign)
	var account MojangAccount
	if err := requestJSON(ctx, m.http, m.log, mojangService, http.MethodGet, url, nil, &account); err != nil {
		return nil, err
	}
	if account.ID == "" || account.Name == "" {
		return nil, nil
	}
	m.cache.SetDefault(key, &account)
	return &account, nil
}

// FetchUUID resolves an in-game name to its UUID, or "" when unknown.
func (m *Mojang) FetchUUID(ctx context.Context, ign string, useCache bool) (string, error) {
	account, err := m.ResolveIGN(ctx, ign, useCache)
	if err != nil || account == nil {
		return "", err
	}
	return account.ID, nil
}
