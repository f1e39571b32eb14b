package careplan

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/carewizard/internal/platform/auth"
	"github.com/ehr/carewizard/internal/platform/blobstore"
	"github.com/ehr/carewizard/internal/platform/db"
	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/ehr/carewizard/internal/platform/wizard"
	"github.com/ehr/carewizard/pkg/pagination"
)

// AttachmentPath is the route prefix attachment URLs are built on.
const AttachmentPath = "/api/v1/care-plan-attachments/"

type Handler struct {
	svc   *Service
	blobs blobstore.BlobStore
}

func NewHandler(svc *Service, blobs blobstore.BlobStore) *Handler {
	return &Handler{svc: svc, blobs: blobs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "care_coordinator", "nurse")

	read := api.Group("", role, auth.RequireScope("careplan", "read"))
	read.GET("/care-plans/:client_id/wizard", h.GetWizard)
	read.GET("/care-plans/:client_id/submissions", h.ListSubmissions)
	read.GET("/care-plan-drafts", h.ListDrafts)
	read.GET("/care-plan-attachments/:id", h.DownloadAttachment)

	write := api.Group("", role, auth.RequireScope("careplan", "write"))
	write.PATCH("/care-plans/:client_id/wizard/fields", h.MutateFields)
	write.PUT("/care-plans/:client_id/wizard/attachments/:field", h.UploadAttachment)
	write.POST("/care-plans/:client_id/wizard/advance", h.Advance)
	write.POST("/care-plans/:client_id/wizard/goto", h.GoTo)
	write.DELETE("/care-plans/:client_id/wizard", h.ClearWizard)
	write.DELETE("/care-plans/:client_id/wizard/session", h.CloseWizard)
}

func tenantOf(c echo.Context) string {
	if t := db.TenantFromContext(c.Request().Context()); t != "" {
		return t
	}
	return "default"
}

// httpError maps service errors to API responses.
func httpError(err error) error {
	var normErr *NormalizationError
	var dispErr *DispatchError
	switch {
	case errors.As(err, &normErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"code":     normErr.Code,
			"field":    normErr.Field,
			"messages": normErr.Messages(),
		})
	case errors.As(err, &dispErr):
		return echo.NewHTTPError(http.StatusBadGateway, dispErr.Error())
	case errors.Is(err, ErrInvalidClientID), errors.Is(err, ErrUnknownStep),
		errors.Is(err, ErrUnknownOperation), errors.Is(err, ErrNotAttachment),
		errors.Is(err, formstate.ErrUnknownField), errors.Is(err, formstate.ErrKindMismatch),
		errors.Is(err, wizard.ErrStepOutOfRange),
		errors.Is(err, blobstore.ErrMissingFileName), errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, wizard.ErrStepLocked), errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) GetWizard(c echo.Context) error {
	st, err := h.svc.View(c.Request().Context(), tenantOf(c), c.Param("client_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

type mutateRequest struct {
	Commands []FieldCommand `json:"commands"`
}

func (h *Handler) MutateFields(c echo.Context) error {
	var req mutateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Commands) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "commands is required")
	}
	st, err := h.svc.Mutate(c.Request().Context(), tenantOf(c), c.Param("client_id"), req.Commands)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, blobstore.MaxFileSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res := &formstate.Resource{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}
	if err := h.svc.Attach(c.Request().Context(), tenantOf(c), c.Param("client_id"), c.Param("field"), res); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.Descriptor())
}

// labels picks the label language from ?lang=, then Accept-Language.
func (h *Handler) labels(c echo.Context) wizard.Labeler {
	lang := c.QueryParam("lang")
	if lang == "" {
		lang = c.Request().Header.Get("Accept-Language")
	}
	return h.svc.Catalog().Labels.For(lang)
}

type advanceRequest struct {
	ClientName string `json:"client_name"`
}

func (h *Handler) Advance(c echo.Context) error {
	var req advanceRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	ctx := c.Request().Context()
	labels := h.labels(c)
	meta := Meta{ClientName: req.ClientName, Actor: auth.UserIDFromContext(ctx)}

	res, err := h.svc.Advance(ctx, tenantOf(c), c.Param("client_id"), meta, labels)
	if err != nil {
		return httpError(err)
	}
	switch res.Outcome {
	case OutcomeBlocked:
		return c.JSON(http.StatusUnprocessableEntity, res)
	case OutcomeSubmitted:
		return c.JSON(http.StatusCreated, res)
	default:
		return c.JSON(http.StatusOK, res)
	}
}

type gotoRequest struct {
	Step string `json:"step"`
}

func (h *Handler) GoTo(c echo.Context) error {
	var req gotoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.GoTo(c.Request().Context(), tenantOf(c), c.Param("client_id"), req.Step)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ClearWizard(c echo.Context) error {
	if err := h.svc.Clear(c.Request().Context(), tenantOf(c), c.Param("client_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CloseWizard(c echo.Context) error {
	if _, err := h.svc.Close(tenantOf(c), c.Param("client_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDrafts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDrafts(c.Request().Context(), tenantOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) ListSubmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSubmitted(c.Request().Context(), tenantOf(c), c.Param("client_id"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	rc, meta, err := h.blobs.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}
	defer rc.Close()
	if !strings.HasPrefix(meta.Owner, tenantOf(c)+"/") {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+strings.ReplaceAll(meta.FileName, `"`, "")+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
