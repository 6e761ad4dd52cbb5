package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/chat"
	"github.com/iliyamo/secondhand-market/internal/realtime"
)

// LiveHandler streams the site-wide online count and, for signed-in
// viewers, their unread message count.
type LiveHandler struct {
	Tracker        *realtime.Tracker
	Unread         chat.UnreadSource
	Feed           realtime.Feed
	UnreadInterval time.Duration
}

func NewLiveHandler(tracker *realtime.Tracker, unread chat.UnreadSource, feed realtime.Feed, interval time.Duration) *LiveHandler {
	return &LiveHandler{Tracker: tracker, Unread: unread, Feed: feed, UnreadInterval: interval}
}

// Online handles GET /v1/online with the current count only.
func (h *LiveHandler) Online(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Tracker.Online(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"online": n})
}

// Stream handles GET /v1/live as server-sent events.  A signed-in viewer
// is counted online for as long as the stream stays open; guests only
// watch.  Events are "online" with the distinct count and "unread" with
// the viewer's unread total.
func (h *LiveHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	uid, _ := getUserID(c)

	client := realtime.NewClient(h.Tracker)
	defer client.Close()
	if err := client.SetIdentity(ctx, uid); err != nil {
		return fail(c, err)
	}
	counts, err := h.Tracker.Counts(ctx)
	if err != nil {
		return fail(c, err)
	}

	var unread <-chan int64
	if uid != 0 && h.Unread != nil {
		u, err := chat.StartUnread(ctx, h.Unread, h.Feed, uid, h.UnreadInterval)
		if err != nil {
			log.Printf("live: unread counter for %d: %v", uid, err)
		} else {
			defer u.Close()
			unread = u.Counts()
		}
	}

	w := startSSE(c)
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, open := <-counts:
			if !open {
				return nil
			}
			if err := w.event("online", echo.Map{"online": n}); err != nil {
				return nil
			}
		case n, open := <-unread:
			if !open {
				unread = nil
				continue
			}
			if err := w.event("unread", echo.Map{"unread": n}); err != nil {
				return nil
			}
		case <-tick.C:
			if err := w.ping(); err != nil {
				return nil
			}
		}
	}
}
