package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/service"
	"github.com/iliyamo/secondhand-market/internal/storage"
)

// ImageStore is the part of the object store the upload endpoints use.
type ImageStore interface {
	SignUpload(ctx context.Context, key, contentType string) (*storage.SignedUpload, error)
	Upload(ctx context.Context, key, contentType string, data []byte) error
	PublicURL(key string) string
	MaxUploadBytes() int64
}

// UploadHandler hands out image keys under the caller's listing prefix.
// The returned key is what a listing's images field carries.
type UploadHandler struct {
	Store ImageStore
	Gate  *service.Gate
}

func NewUploadHandler(store ImageStore, gate *service.Gate) *UploadHandler {
	return &UploadHandler{Store: store, Gate: gate}
}

type signReq struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func uploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return failMsg(c, http.StatusBadRequest, "Only JPEG, PNG and WebP images are allowed")
	case errors.Is(err, storage.ErrTooLarge):
		return failMsg(c, http.StatusBadRequest, "File size exceeds limit")
	}
	return fail(c, err)
}

// active resolves the caller and refuses suspended accounts.
func (h *UploadHandler) active(c echo.Context) (uint64, error) {
	uid, err := getUserID(c)
	if err != nil {
		return 0, failMsg(c, http.StatusUnauthorized, service.MsgSignInRequired)
	}
	if h.Store == nil {
		return 0, failMsg(c, http.StatusServiceUnavailable, "Uploads are not configured")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Gate.RequireActive(ctx, uid); err != nil {
		return 0, fail(c, err)
	}
	return uid, nil
}

// Sign handles POST /v1/uploads/sign and returns a presigned PUT URL.
func (h *UploadHandler) Sign(c echo.Context) error {
	var req signReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	uid, err := h.active(c)
	if uid == 0 {
		return err
	}
	ext, err := storage.ValidateUpload(req.ContentType, req.Size, h.Store.MaxUploadBytes())
	if err != nil {
		return uploadError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	up, err := h.Store.SignUpload(ctx, storage.ImageKey(uid, ext), req.ContentType)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, up)
}

// Upload handles POST /v1/uploads with a multipart "file" field and
// stores it directly.
func (h *UploadHandler) Upload(c echo.Context) error {
	uid, err := h.active(c)
	if uid == 0 {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return failMsg(c, http.StatusBadRequest, "file is required")
	}
	ct := fh.Header.Get("Content-Type")
	ext, err := storage.ValidateUpload(ct, fh.Size, h.Store.MaxUploadBytes())
	if err != nil {
		return uploadError(c, err)
	}
	src, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return fail(c, err)
	}
	key := storage.ImageKey(uid, ext)
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Store.Upload(ctx, key, ct, data); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, echo.Map{"key": key, "file_url": h.Store.PublicURL(key)})
}
