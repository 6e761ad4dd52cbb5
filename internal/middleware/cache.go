package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/secondhand-market/internal/config"
    "github.com/iliyamo/secondhand-market/internal/realtime"
)

// CatalogCache serves anonymous catalogue reads from Redis.  Entries are
// namespaced by a generation number stored next to them; any listing change
// bumps the generation so a sold, hidden or removed listing disappears from
// cached pages on every instance at once instead of after the TTL.
type CatalogCache struct {
    cfg config.CacheConfig
    rdb *redis.Client
}

// NewCatalogCache returns a cache over rdb.  A nil client or a disabled
// config yields a cache whose middleware passes every request through.
func NewCatalogCache(cfg config.CacheConfig, rdb *redis.Client) *CatalogCache {
    if cfg.TTL <= 0 {
        cfg.TTL = 15 * time.Second
    }
    if cfg.Prefix == "" {
        cfg.Prefix = "cache"
    }
    return &CatalogCache{cfg: cfg, rdb: rdb}
}

func (cc *CatalogCache) active() bool { return cc.cfg.Enabled && cc.rdb != nil }

func (cc *CatalogCache) genKey() string { return cc.cfg.Prefix + ":gen" }

func (cc *CatalogCache) generation(ctx context.Context) (int64, error) {
    gen, err := cc.rdb.Get(ctx, cc.genKey()).Int64()
    if errors.Is(err, redis.Nil) {
        return 0, nil
    }
    return gen, err
}

// Invalidate retires every cached page.  Old entries are left to expire.
func (cc *CatalogCache) Invalidate(ctx context.Context) error {
    if !cc.active() {
        return nil
    }
    return cc.rdb.Incr(ctx, cc.genKey()).Err()
}

// Follow invalidates the cache on every listing event until ctx ends.
func (cc *CatalogCache) Follow(ctx context.Context, feed realtime.Feed) error {
    if !cc.active() {
        return nil
    }
    sub, err := feed.Subscribe(ctx, realtime.TableListings, realtime.Filter{})
    if err != nil {
        return err
    }
    defer sub.Close()
    return invalidateOn(ctx, sub, cc.Invalidate)
}

func invalidateOn(ctx context.Context, sub realtime.Subscription, invalidate func(context.Context) error) error {
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case ev, ok := <-sub.C():
            if !ok {
                return nil
            }
            if err := invalidate(ctx); err != nil {
                log.Printf("cache: invalidate after listing %s: %v", ev.Type, err)
            }
        }
    }
}

// pageKey identifies a catalogue page.  Query parameters are re-encoded in
// sorted order so equivalent filters share an entry.
func pageKey(prefix string, gen int64, c echo.Context) string {
    q := c.Request().URL.Query().Encode()
    sum := sha1.Sum([]byte(c.Path() + "?" + q))
    return fmt.Sprintf("%s:g%d:%x", prefix, gen, sum)
}

type cachedPage struct {
    ContentType string `json:"content_type"`
    Body        []byte `json:"body"`
}

func encodePage(contentType string, body []byte) ([]byte, error) {
    return json.Marshal(cachedPage{ContentType: contentType, Body: body})
}

func decodePage(bs []byte) (cachedPage, bool) {
    var p cachedPage
    if err := json.Unmarshal(bs, &p); err != nil || p.ContentType == "" {
        return cachedPage{}, false
    }
    return p, true
}

// pageRecorder copies what the handler writes until the body outgrows limit.
type pageRecorder struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (pr *pageRecorder) WriteHeader(code int) {
    pr.status = code
    pr.ResponseWriter.WriteHeader(code)
}

func (pr *pageRecorder) Write(b []byte) (int, error) {
    if !pr.overflow {
        if pr.limit > 0 && pr.buf.Len()+len(b) > pr.limit {
            pr.overflow = true
            pr.buf.Reset()
        } else {
            pr.buf.Write(b)
        }
    }
    return pr.ResponseWriter.Write(b)
}

// Middleware caches 200 responses to anonymous requests.  Signed-in callers
// bypass it since owners and admins see listings the public cannot.
func (cc *CatalogCache) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        if !cc.active() {
            return next
        }
        return func(c echo.Context) error {
            req := c.Request()
            if !cc.cfg.Methods[strings.ToUpper(req.Method)] || UserID(c) != 0 || req.Header.Get("Authorization") != "" {
                return next(c)
            }
            ctx := req.Context()
            gen, err := cc.generation(ctx)
            if err != nil {
                return next(c)
            }
            key := pageKey(cc.cfg.Prefix, gen, c)

            if bs, err := cc.rdb.Get(ctx, key).Bytes(); err == nil {
                if p, ok := decodePage(bs); ok {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(http.StatusOK, p.ContentType, p.Body)
                }
            }

            rec := &pageRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cc.cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.overflow {
                return nil
            }
            payload, err := encodePage(c.Response().Header().Get(echo.HeaderContentType), rec.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := cc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, cc.cfg.TTL).Err(); err != nil {
                log.Printf("cache: store %s: %v", c.Path(), err)
            }
            return nil
        }
    }
}
