package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/config"
)

// captureWriter tees the response body (up to limit bytes) while writing
// it through to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) > remain {
			cw.buf.Write(b[:remain])
		} else {
			cw.buf.Write(b)
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ScopeFunc names the group a cached response belongs to.  All entries of
// one scope are dropped together by Invalidate.  An empty scope disables
// caching for the request.
type ScopeFunc func(c echo.Context) string

// SlotScope scopes entries by the :id path parameter of a slot route.
func SlotScope(param string) ScopeFunc {
	return func(c echo.Context) string {
		id := c.Param(param)
		if id == "" {
			return ""
		}
		return "slot:" + id
	}
}

func slotScope(id uint64) string { return fmt.Sprintf("slot:%d", id) }

// ResponseCache stores successful GET responses in Redis.  Every scope
// carries a generation counter that is part of each entry's key; a
// mutation bumps the counter, so a response computed before the bump can
// only ever be written under a generation nobody reads any more.  Entries
// are also listed in a per-scope index set so that Invalidate can free
// them right away instead of waiting for the TTL.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log logrus.FieldLogger
}

// NewResponseCache returns a cache; with a nil client or CACHE_ENABLED=false
// the middleware passes through and invalidation is a no-op.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log logrus.FieldLogger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *ResponseCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

func (rc *ResponseCache) indexKey(scope string) string {
	return rc.cfg.Prefix + ":" + scope + ":keys"
}

func (rc *ResponseCache) genKey(scope string) string {
	return rc.cfg.Prefix + ":" + scope + ":gen"
}

// generation returns the scope's current generation; a missing counter
// is generation 0.
func (rc *ResponseCache) generation(ctx context.Context, scope string) (int64, error) {
	gen, err := rc.rdb.Get(ctx, rc.genKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Middleware caches responses under the scope returned by scopeOf.  A
// handler bounds the lifetime of its entry with Cache-Control: max-age;
// no-store or max-age=0 keeps the response out of the cache.
func (rc *ResponseCache) Middleware(scopeOf ScopeFunc) echo.MiddlewareFunc {
	if !rc.enabled() {
		return passthrough
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope := scopeOf(c)
			if scope == "" || !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			gen, err := rc.generation(ctx, scope)
			if err != nil {
				rc.log.WithError(err).WithField("scope", scope).Warn("cache unavailable")
				return next(c)
			}
			key := cacheKeyFrom(rc.cfg, scope, gen, c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			ttl := entryTTL(c.Response().Header(), rc.cfg.TTL)
			if ttl <= 0 {
				return nil
			}
			payload, err := encodePayload(cw.status, c.Response().Header().Clone(), cw.buf.Bytes())
			if err != nil {
				return nil
			}
			rc.store(context.Background(), scope, key, payload, ttl)
			return nil
		}
	}
}

// entryTTL caps def by the response's Cache-Control max-age.  Zero means
// the response must not be stored.
func entryTTL(h http.Header, def time.Duration) time.Duration {
	ttl := def
	for _, d := range strings.Split(h.Get("Cache-Control"), ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		switch {
		case d == "no-store", d == "no-cache", d == "private":
			return 0
		case strings.HasPrefix(d, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(d, "max-age="))
			if err != nil || secs <= 0 {
				return 0
			}
			if age := time.Duration(secs) * time.Second; age < ttl {
				ttl = age
			}
		}
	}
	return ttl
}

func (rc *ResponseCache) store(ctx context.Context, scope, key string, payload []byte, ttl time.Duration) {
	idx := rc.indexKey(scope)
	_, err := rc.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetEx(ctx, key, payload, ttl)
		p.SAdd(ctx, idx, key)
		p.Expire(ctx, idx, rc.cfg.TTL)
		return nil
	})
	if err != nil {
		rc.log.WithError(err).WithField("key", key).Warn("cache store failed")
	}
}

// Invalidate moves scope to a new generation and drops the entries
// cached under the old ones.
func (rc *ResponseCache) Invalidate(ctx context.Context, scope string) {
	if !rc.enabled() {
		return
	}
	log := rc.log.WithField("scope", scope)
	if err := rc.rdb.Incr(ctx, rc.genKey(scope)).Err(); err != nil {
		log.WithError(err).Warn("cache invalidation failed")
	}
	idx := rc.indexKey(scope)
	keys, err := rc.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		log.WithError(err).Warn("cache cleanup failed")
		return
	}
	if err := rc.rdb.Del(ctx, append(keys, idx)...).Err(); err != nil {
		log.WithError(err).Warn("cache cleanup failed")
	}
}

// InvalidateSlot drops the cached availability of one slot.
func (rc *ResponseCache) InvalidateSlot(ctx context.Context, slotID uint64) {
	rc.Invalidate(ctx, slotScope(slotID))
}

// cacheKeyFrom builds prefix:scope:g<gen>:sha1(variant) where the variant
// is chosen by cfg.KeyStrategy.
func cacheKeyFrom(cfg config.CacheConfig, scope string, gen int64, c echo.Context) string {
	r := c.Request()
	var variant string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		variant = c.Path()
	case "method_route":
		variant = r.Method + " " + c.Path()
	case "method_route_query":
		variant = r.Method + " " + c.Path() + "?" + r.URL.RawQuery
	default:
		variant = c.Path() + "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(variant))
	return fmt.Sprintf("%s:%s:g%d:%x", cfg.Prefix, scope, gen, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	copy(out[8:], hdr)
	copy(out[8+len(hdr):], body)
	return out, nil
}

func decodePayload(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}
