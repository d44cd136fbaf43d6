package apis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	hypixelService  = "hypixel"
	hypixelTimeout  = 7 * time.Second
	hypixelCacheTTL = 5 * time.Minute
	hypixelHost     = "https://api.hypixel.net"
)

// HypixelPlayer is the subset of a Hypixel player response the bot reads.
type HypixelPlayer struct {
	UUID        string                    `json:"uuid"`
	Displayname string                    `json:"displayname"`
	Stats       map[string]map[string]any `json:"stats"`
}

type hypixelResponse struct {
	Success bool           `json:"success"`
	Cause   string         `json:"cause"`
	Player  *HypixelPlayer `json:"player"`
}

// Hypixel fetches player stats from the Hypixel API. Rate-limit responses
// throttle the client until the reset point the API announces; calls during
// a long throttle fail fast with a retriable error.
type Hypixel struct {
	token string
	host  string
	http  *retryablehttp.Client
	cache *gocache.Cache
	log   *zap.Logger

	mu             sync.Mutex
	throttledUntil time.Time
}

// NewHypixel creates a Hypixel client with its own response cache.
func NewHypixel(token string, log *zap.Logger) *Hypixel {
	client := newHTTPClient(hypixelTimeout)
	// the throttle layer handles 429 itself, the transport must not
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &Hypixel{
		token: token,
		host:  hypixelHost,
		http:  client,
		cache: gocache.New(hypixelCacheTTL, time.Minute),
		log:   log.Named(hypixelService),
	}
}

// ThrottleRemaining returns how long the client stays throttled, or 0.
func (h *Hypixel) ThrottleRemaining() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if remaining := time.Until(h.throttledUntil); remaining > 0 {
		return remaining
	}
	return 0
}

func (h *Hypixel) checkThrottle(ctx context.Context) error {
	remaining := h.ThrottleRemaining()
	if remaining == 0 {
		return nil
	}
	if remaining >= hypixelTimeout {
		return newError(hypixelService, "throttled by rate limit", true)
	}
	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return newError(hypixelService, ctx.Err().Error(), true)
	}
}

func (h *Hypixel) throttle(resp *Error, header http.Header) {
	reset, err := strconv.Atoi(header.Get("RateLimit-Reset"))
	if err != nil || reset <= 0 {
		reset = 10
	}
	h.mu.Lock()
	h.throttledUntil = time.Now().Add(time.Duration(reset) * time.Second)
	h.mu.Unlock()
	h.log.Warn("throttled", zap.Int("reset_seconds", reset), zap.Error(resp))
}

// FetchPlayer fetches one player's stats by UUID.
func (h *Hypixel) FetchPlayer(ctx context.Context, uuid string, useCache bool) (*HypixelPlayer, error) {
	key := cacheKey("player", uuid)
	if useCache {
		if cached, ok := h.cache.Get(key); ok {
			return cached.(*HypixelPlayer), nil
		}
	}
	if err := h.checkThrottle(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/player?uuid=%s", h.host, url.QueryEscape(uuid))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(hypixelService, err.Error(), false)
	}
	req.Header.Set("API-Key", h.token)
	req.Header.Set("Accept", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, newError(hypixelService, err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr := statusError(hypixelService, resp.StatusCode)
		h.throttle(apiErr, resp.Header)
		return nil, apiErr
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(hypixelService, resp.StatusCode)
	}

	var body hypixelResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, newError(hypixelService, err.Error(), false)
	}
	if !body.Success {
		return nil, newError(hypixelService, body.Cause, false)
	}
	if body.Player == nil {
		return nil, nil
	}
	h.cache.SetDefault(key, body.Player)
	return body.Player, nil
}
