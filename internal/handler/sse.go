package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// keepAlive is how often an idle event stream writes a comment line so
// proxies keep the connection open.
const keepAlive = 25 * time.Second

type sseWriter struct {
	res *echo.Response
}

func startSSE(c echo.Context) *sseWriter {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()
	return &sseWriter{res: res}
}

func (w *sseWriter) event(name string, data any) error {
	bs, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", name, bs); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

func (w *sseWriter) ping() error {
	if _, err := fmt.Fprint(w.res, ": ping\n\n"); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}
