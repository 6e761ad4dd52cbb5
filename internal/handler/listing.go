package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/service"
)

// AccountReader loads accounts for contact details on listings.
type AccountReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
}

// ListingHandler serves the public catalogue and the seller's own listings.
type ListingHandler struct {
	Listings *service.ListingService
	Accounts AccountReader
}

func NewListingHandler(listings *service.ListingService, accounts AccountReader) *ListingHandler {
	return &ListingHandler{Listings: listings, Accounts: accounts}
}

type listingReq struct {
	Title       string   `json:"title"`
	PriceCents  int64    `json:"price_cents"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Condition   string   `json:"condition"`
	Images      []string `json:"images"`
	MeetupArea  string   `json:"meetup_area"`
	ShowContact bool     `json:"show_contact"`
}

type editReq struct {
	Title        *string  `json:"title"`
	PriceCents   *int64   `json:"price_cents"`
	Description  *string  `json:"description"`
	Category     *string  `json:"category"`
	SubCategory  *string  `json:"sub_category"`
	Condition    *string  `json:"condition"`
	MeetupArea   *string  `json:"meetup_area"`
	ShowContact  *bool    `json:"show_contact"`
	AddImages    []string `json:"add_images"`
	RemoveImages []string `json:"remove_images"`
}

type soldReq struct {
	BuyerID *uint64 `json:"buyer_id"`
}

type sellerContact struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
}

// Browse handles GET /v1/listings: available listings, newest first.
func (h *ListingHandler) Browse(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ls, err := h.Listings.Browse(ctx, listFilter(c))
	if err != nil {
		return fail(c, err)
	}
	if ls == nil {
		ls = []*model.Listing{}
	}
	return ok(c, http.StatusOK, ls)
}

// Get handles GET /v1/listings/:id.  Owners and admins see any status.
func (h *ListingHandler) Get(c echo.Context) error {
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	viewer, _ := getUserID(c)
	l, err := h.Listings.Get(ctx, viewer, id)
	if err != nil {
		return fail(c, err)
	}
	out := echo.Map{"listing": l}
	if h.Accounts != nil {
		if seller, err := h.Accounts.GetByID(ctx, l.SellerID); err == nil {
			contact := sellerContact{DisplayName: seller.DisplayName}
			if l.ShowContact {
				contact.Phone = seller.Phone
			}
			out["seller"] = contact
		}
	}
	return ok(c, http.StatusOK, out)
}

// Submit handles POST /v1/listings.  New listings wait for review.
func (h *ListingHandler) Submit(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	var req listingReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Listings.Submit(ctx, uid, service.ListingInput{
		Title: req.Title, PriceCents: req.PriceCents, Description: req.Description,
		Category: req.Category, SubCategory: req.SubCategory, Condition: req.Condition,
		Images: req.Images, MeetupArea: req.MeetupArea, ShowContact: req.ShowContact,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, l)
}

// Edit handles PATCH /v1/listings/:id and reports how the edit was classified.
func (h *ListingHandler) Edit(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req editReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, cls, err := h.Listings.Edit(ctx, uid, id, service.ListingChanges{
		Title: req.Title, PriceCents: req.PriceCents, Description: req.Description,
		Category: req.Category, SubCategory: req.SubCategory, Condition: req.Condition,
		MeetupArea: req.MeetupArea, ShowContact: req.ShowContact,
		AddImages: req.AddImages, RemoveImages: req.RemoveImages,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{
		"listing":        l,
		"edit":           cls.Class.String(),
		"removed_images": cls.RemovedImages,
	})
}

// MarkSold handles POST /v1/listings/:id/sold.
func (h *ListingHandler) MarkSold(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req soldReq
	_ = c.Bind(&req)
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Listings.MarkSold(ctx, uid, id, req.BuyerID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, l)
}

// Unhide handles POST /v1/listings/:id/unhide for owners.  Admins reach
// the same operation through the moderation routes.
func (h *ListingHandler) Unhide(c echo.Context) error {
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
	l, err := h.Listings.Unhide(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, l)
}

// Remove handles DELETE /v1/listings/:id: the owner deletes for good.
func (h *ListingHandler) Remove(c echo.Context) error {
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
	if err := h.Listings.Remove(ctx, uid, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine handles GET /v1/me/listings.
func (h *ListingHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ls, err := h.Listings.Mine(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	if ls == nil {
		ls = []*model.Listing{}
	}
	return ok(c, http.StatusOK, ls)
}
