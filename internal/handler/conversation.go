package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/chat"
	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/service"
)

// ConversationHandler serves buyer/seller threads and their messages.
type ConversationHandler struct {
	Convs    *service.ConversationService
	Messages *service.MessageService
	Feed     realtime.Feed
}

func NewConversationHandler(convs *service.ConversationService, msgs *service.MessageService, feed realtime.Feed) *ConversationHandler {
	return &ConversationHandler{Convs: convs, Messages: msgs, Feed: feed}
}

type startReq struct {
	ListingID uint64 `json:"listing_id"`
}

type sendReq struct {
	Content string `json:"content"`
}

// Start handles POST /v1/conversations.  It returns the existing thread
// when the buyer already has one about the listing.
func (h *ConversationHandler) Start(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	var req startReq
	if err := c.Bind(&req); err != nil || req.ListingID == 0 {
		return failMsg(c, http.StatusBadRequest, "listing_id is required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.Convs.StartOrResume(ctx, uid, req.ListingID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, conv)
}

// List handles GET /v1/conversations.
func (h *ConversationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cs, err := h.Convs.List(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	if cs == nil {
		cs = []*model.ConversationSummary{}
	}
	return ok(c, http.StatusOK, cs)
}

// Delete handles DELETE /v1/conversations/:id.  The thread disappears for
// the caller; it is removed once both sides have deleted it.
func (h *ConversationHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	removed, err := h.Convs.Delete(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"removed": removed})
}

// History handles GET /v1/conversations/:id/messages.
func (h *ConversationHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ms, err := h.Messages.History(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	if ms == nil {
		ms = []*model.Message{}
	}
	return ok(c, http.StatusOK, ms)
}

// Send handles POST /v1/conversations/:id/messages.
func (h *ConversationHandler) Send(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req sendReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Messages.Send(ctx, uid, id, req.Content)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, m)
}

// ReadAll handles POST /v1/conversations/:id/read.
func (h *ConversationHandler) ReadAll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ids, err := h.Messages.MarkAllRead(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ok(c, http.StatusOK, echo.Map{"read": ids})
}

// ReadOne handles POST /v1/conversations/:id/messages/:msg/read.
func (h *ConversationHandler) ReadOne(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	msgID, msgValid := pathID(c, "msg")
	if !valid || !msgValid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	changed, err := h.Messages.MarkRead(ctx, uid, id, msgID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"changed": changed})
}

// Unread handles GET /v1/me/unread.
func (h *ConversationHandler) Unread(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Messages.UnreadCount(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"unread": n})
}

// Stream handles GET /v1/conversations/:id/stream as server-sent events.
// The first event carries the history; later events carry peer messages,
// read receipts for the caller's messages and the frozen notice.  With
// focused=true the stream marks incoming messages read as they arrive.
func (h *ConversationHandler) Stream(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	if h.Feed == nil {
		return failMsg(c, http.StatusServiceUnavailable, "Live updates are not available")
	}
	focused, _ := strconv.ParseBool(c.QueryParam("focused"))

	ctx, cancel := reqCtx(c)
	conv, _, err := h.Convs.Participant(ctx, uid, id)
	if err != nil {
		cancel()
		return fail(c, err)
	}
	frozen, err := h.Messages.Frozen(ctx, conv)
	if err != nil {
		cancel()
		return fail(c, err)
	}
	ch, err := chat.Open(ctx, h.Messages, h.Feed, chat.Options{
		Identity: uid, Conversation: conv, Frozen: frozen, Focused: focused,
	})
	cancel()
	if err != nil {
		return fail(c, err)
	}
	defer ch.Close()

	w := startSSE(c)
	if err := w.event("history", echo.Map{"items": ch.Items(), "frozen": ch.Frozen()}); err != nil {
		return nil
	}
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case u, open := <-ch.Updates():
			if !open {
				return nil
			}
			if err := w.event(string(u.Kind), u); err != nil {
				return nil
			}
		case <-tick.C:
			if err := w.ping(); err != nil {
				return nil
			}
		}
	}
}
