package middleware

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/secondhand-market/internal/realtime"
)

func TestPageKeyIgnoresQueryOrder(t *testing.T) {
    e := echo.New()
    keys := map[string]string{}
    var gen int64
    e.GET("/v1/listings", func(c echo.Context) error {
        keys[c.Request().URL.RawQuery] = pageKey("cache", gen, c)
        return nil
    })
    for _, u := range []string{
        "/v1/listings?category=sports&sort=price",
        "/v1/listings?sort=price&category=sports",
        "/v1/listings?category=books",
    } {
        serve(e, httptest.NewRequest(http.MethodGet, u, nil))
    }
    if keys["category=sports&sort=price"] != keys["sort=price&category=sports"] {
        t.Fatal("reordered filters must share a key")
    }
    if keys["category=sports&sort=price"] == keys["category=books"] {
        t.Fatal("different filters must not share a key")
    }

    before := keys["category=books"]
    gen = 1
    serve(e, httptest.NewRequest(http.MethodGet, "/v1/listings?category=books", nil))
    if keys["category=books"] == before {
        t.Fatal("a new generation must change the key")
    }
}

func TestCachedPage(t *testing.T) {
    bs, err := encodePage("application/json", []byte(`{"success":true}`))
    if err != nil {
        t.Fatal(err)
    }
    p, ok := decodePage(bs)
    if !ok || p.ContentType != "application/json" || string(p.Body) != `{"success":true}` {
        t.Fatalf("decoded %+v %v", p, ok)
    }
    if _, ok := decodePage([]byte(`{"body":"e30="}`)); ok {
        t.Fatal("page without content type should not decode")
    }
    if _, ok := decodePage([]byte("garbage")); ok {
        t.Fatal("garbage should not decode")
    }
}

func TestPageRecorderDropsOversizedBodies(t *testing.T) {
    rec := &pageRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, limit: 8}
    _, _ = rec.Write([]byte("1234"))
    _, _ = rec.Write([]byte("5678"))
    if rec.overflow || rec.buf.String() != "12345678" {
        t.Fatalf("at limit: overflow=%v body=%q", rec.overflow, rec.buf.String())
    }
    _, _ = rec.Write([]byte("9"))
    if !rec.overflow || rec.buf.Len() != 0 {
        t.Fatalf("past limit: overflow=%v len=%d", rec.overflow, rec.buf.Len())
    }
    if got := rec.ResponseWriter.(*httptest.ResponseRecorder).Body.String(); got != "123456789" {
        t.Fatalf("client got %q", got)
    }
}

func TestListingEventsInvalidate(t *testing.T) {
    feed := realtime.NewMemoryFeed()
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    sub, err := feed.Subscribe(ctx, realtime.TableListings, realtime.Filter{})
    if err != nil {
        t.Fatal(err)
    }
    defer sub.Close()

    bumps := make(chan struct{}, 4)
    done := make(chan error, 1)
    go func() {
        done <- invalidateOn(ctx, sub, func(context.Context) error {
            bumps <- struct{}{}
            return nil
        })
    }()

    for _, typ := range []realtime.EventType{realtime.EventUpdate, realtime.EventDelete} {
        ev, err := realtime.NewEvent(realtime.TableListings, typ, map[string]any{"id": 7}, nil)
        if err != nil {
            t.Fatal(err)
        }
        if err := feed.Publish(ctx, ev, realtime.Eq("id", 7)); err != nil {
            t.Fatal(err)
        }
        select {
        case <-bumps:
        case <-time.After(time.Second):
            t.Fatalf("%s event did not invalidate", typ)
        }
    }

    cancel()
    select {
    case err := <-done:
        if !errors.Is(err, context.Canceled) {
            t.Fatalf("err = %v", err)
        }
    case <-time.After(time.Second):
        t.Fatal("watcher did not stop")
    }
}
