package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/middleware"
	"github.com/iliyamo/secondhand-market/internal/repository"
	"github.com/iliyamo/secondhand-market/internal/service"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated account id or an error for guests.
func getUserID(c echo.Context) (uint64, error) {
	if id := middleware.UserID(c); id != 0 {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func listFilter(c echo.Context) repository.ListFilter {
	f := repository.ListFilter{Category: c.QueryParam("category")}
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	f.Offset, _ = strconv.Atoi(c.QueryParam("offset"))
	return f
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func failMsg(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

var statusByKind = map[service.Kind]int{
	service.KindUnauthenticated: http.StatusUnauthorized,
	service.KindUnauthorized:    http.StatusForbidden,
	service.KindValidation:      http.StatusBadRequest,
	service.KindConflict:        http.StatusConflict,
	service.KindNotFound:        http.StatusNotFound,
	service.KindStore:           http.StatusInternalServerError,
}

// fail renders a service error as {"success": false, "error": msg}.  Store
// failures are logged with their cause and shown generically.
func fail(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Kind: service.KindStore, Msg: service.MsgStoreUnavailable, Err: err}
	}
	if se.Kind == service.KindStore {
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), se.Err)
		return failMsg(c, http.StatusInternalServerError, service.MsgStoreUnavailable)
	}
	status, found := statusByKind[se.Kind]
	if !found {
		status = http.StatusInternalServerError
	}
	return failMsg(c, status, se.Msg)
}
