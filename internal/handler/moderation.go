package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/service"
)

// ModerationHandler serves the admin console and user reports.  The
// services re-check the admin role against the accounts table; the
// RequireRole middleware only routes.
type ModerationHandler struct {
	Listings   *service.ListingService
	Moderation *service.ModerationService
}

func NewModerationHandler(listings *service.ListingService, mod *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{Listings: listings, Moderation: mod}
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type banReq struct {
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

type reportReq struct {
	TargetType string `json:"target_type"`
	TargetID   uint64 `json:"target_id"`
	Reason     string `json:"reason"`
}

// listingAction covers the admin transitions that take only an id.
type listingAction func(echo.Context, uint64, uint64) (*model.Listing, error)

func (h *ModerationHandler) withListing(c echo.Context, act listingAction) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	l, err := act(c, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, l)
}

// Queue handles GET /v1/admin/listings?status=pending.
func (h *ModerationHandler) Queue(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	status := model.ListingStatus(c.QueryParam("status"))
	if status == "" {
		status = model.ListingPending
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ls, err := h.Listings.Queue(ctx, uid, status, listFilter(c))
	if err != nil {
		return fail(c, err)
	}
	if ls == nil {
		ls = []*model.Listing{}
	}
	return ok(c, http.StatusOK, ls)
}

// Approve handles POST /v1/admin/listings/:id/approve.
func (h *ModerationHandler) Approve(c echo.Context) error {
	return h.withListing(c, func(c echo.Context, uid, id uint64) (*model.Listing, error) {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Listings.Approve(ctx, uid, id)
	})
}

// Reject handles POST /v1/admin/listings/:id/reject.
func (h *ModerationHandler) Reject(c echo.Context) error {
	var req reasonReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	return h.withListing(c, func(c echo.Context, uid, id uint64) (*model.Listing, error) {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Listings.Reject(ctx, uid, id, req.Reason)
	})
}

// Hide handles POST /v1/admin/listings/:id/hide.
func (h *ModerationHandler) Hide(c echo.Context) error {
	var req reasonReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	return h.withListing(c, func(c echo.Context, uid, id uint64) (*model.Listing, error) {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Listings.Hide(ctx, uid, id, req.Reason)
	})
}

// Unhide handles POST /v1/admin/listings/:id/unhide.
func (h *ModerationHandler) Unhide(c echo.Context) error {
	return h.withListing(c, func(c echo.Context, uid, id uint64) (*model.Listing, error) {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Listings.Unhide(ctx, uid, id)
	})
}

// Delete handles POST /v1/admin/listings/:id/delete: a soft delete that
// freezes every conversation about the listing.
func (h *ModerationHandler) Delete(c echo.Context) error {
	return h.withListing(c, func(c echo.Context, uid, id uint64) (*model.Listing, error) {
		ctx, cancel := reqCtx(c)
		defer cancel()
		return h.Listings.AdminDelete(ctx, uid, id)
	})
}

// Purge handles DELETE /v1/admin/listings/:id.
func (h *ModerationHandler) Purge(c echo.Context) error {
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
	if err := h.Listings.Purge(ctx, uid, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Ban handles POST /v1/admin/accounts/:id/ban.
func (h *ModerationHandler) Ban(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req banReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Moderation.Ban(ctx, uid, id, service.BanDuration(req.Duration), req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, a)
}

// Unban handles POST /v1/admin/accounts/:id/unban.
func (h *ModerationHandler) Unban(c echo.Context) error {
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
	a, err := h.Moderation.Unban(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, a)
}

// DeleteAccount handles DELETE /v1/admin/accounts/:id.
func (h *ModerationHandler) DeleteAccount(c echo.Context) error {
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
	if err := h.Moderation.DeleteAccount(ctx, uid, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// FileReport handles POST /v1/reports for any signed-in account.
func (h *ModerationHandler) FileReport(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	var req reportReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rp, err := h.Moderation.FileReport(ctx, uid, req.TargetType, req.TargetID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, rp)
}

// Reports handles GET /v1/admin/reports?status=open.
func (h *ModerationHandler) Reports(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	status := c.QueryParam("status")
	if status == "" {
		status = model.ReportOpen
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rs, err := h.Moderation.Reports(ctx, uid, status)
	if err != nil {
		return fail(c, err)
	}
	if rs == nil {
		rs = []*model.Report{}
	}
	return ok(c, http.StatusOK, rs)
}

// DismissReport handles POST /v1/admin/reports/:id/dismiss.
func (h *ModerationHandler) DismissReport(c echo.Context) error {
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
	rp, err := h.Moderation.DismissReport(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, rp)
}

// ResolveReport handles POST /v1/admin/reports/:id/resolve.  Listing
// reports hide the listing; account reports ban for the given duration.
func (h *ModerationHandler) ResolveReport(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req banReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rp, err := h.Moderation.ResolveReport(ctx, uid, id, service.ReportResolution{
		Reason:   req.Reason,
		Duration: service.BanDuration(req.Duration),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, rp)
}
