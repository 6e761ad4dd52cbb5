package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/service"
)

// ReviewHandler exposes buyer reviews of sold items.
type ReviewHandler struct {
	Reviews *service.ReviewService
}

func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{Reviews: reviews}
}

type reviewReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Create handles POST /v1/listings/:id/review.
func (h *ReviewHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	var req reviewReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rv, err := h.Reviews.Create(ctx, uid, id, req.Rating, req.Comment)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, rv)
}

// ForSeller handles GET /v1/sellers/:id/reviews.
func (h *ReviewHandler) ForSeller(c echo.Context) error {
	id, valid := pathID(c, "id")
	if !valid {
		return failMsg(c, http.StatusBadRequest, "Invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Reviews.ForSeller(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, r)
}
