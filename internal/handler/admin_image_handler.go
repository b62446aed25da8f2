package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 画像アップロードの上限
const maxUploadBytes = 10 << 20

// ダウンロード時のファイル名
const artifactFileName = "products.js"

type AssignmentsRequest struct {
	Mode        model.ApplyMode    `json:"mode"`
	Assignments []model.Assignment `json:"assignments"`
}

type ImageCheckResponse struct {
	URL        string `json:"url"`
	Accessible bool   `json:"accessible"`
}

// /admin/images, /admin/reconcile のHTTP
type AdminImageHandler struct {
	uc *usecase.ReconcileUsecase
}

// DI
func NewAdminImageHandler(uc *usecase.ReconcileUsecase) *AdminImageHandler {
	return &AdminImageHandler{uc: uc}
}

// adminグループ（AuthJWT + AdminRoleGuard 済み）に登録
func (h *AdminImageHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/images", h.listImages)
	admin.POST("/images", h.upload)
	admin.GET("/images/stats", h.stats)
	admin.GET("/images/classification", h.classification)
	admin.GET("/images/suggestions", h.suggestions)
	admin.GET("/images/matches", h.matches)
	admin.GET("/images/check", h.check)
	admin.POST("/images/assignments", h.applyAssignments)

	admin.POST("/reconcile/sessions", h.startSession)
	admin.GET("/reconcile/sessions/:id", h.getSession)
	admin.POST("/reconcile/sessions/:id/apply", h.applySession)
	admin.POST("/reconcile/sessions/:id/restart", h.restartSession)
}

func (h *AdminImageHandler) listImages(c echo.Context) error {
	imgs, err := h.uc.ListImages(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"items": imgs})
}

func (h *AdminImageHandler) stats(c echo.Context) error {
	out, err := h.uc.AssignmentStats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminImageHandler) classification(c echo.Context) error {
	out, err := h.uc.ClassifyImages(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminImageHandler) suggestions(c echo.Context) error {
	out, err := h.uc.SuggestProductUpdates(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// ?name=<画像ファイル名>
func (h *AdminImageHandler) matches(c echo.Context) error {
	items, err := h.uc.SuggestMatches(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

// ?url=<公開URL>
func (h *AdminImageHandler) check(c echo.Context) error {
	u := c.QueryParam("url")
	if u == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url required"})
	}

	return c.JSON(http.StatusOK, ImageCheckResponse{
		URL:        u,
		Accessible: h.uc.CheckImageAccessible(c.Request().Context(), u),
	})
}

// multipart: file, productName
func (h *AdminImageHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file required"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid file"})
	}
	defer f.Close()

	res, err := h.uc.UploadImage(
		c.Request().Context(),
		c.FormValue("productName"),
		fh.Filename,
		fh.Header.Get("Content-Type"),
		f,
	)
	if err != nil {
		return writeError(c, err)
	}

	//アップロード失敗は本文に理由を入れて502
	if !res.Success {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusCreated, res)
}

// mode=artifact かつ ?download=1 ならproducts.jsを添付で返す
func (h *AdminImageHandler) applyAssignments(c echo.Context) error {
	var req AssignmentsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	res, err := h.uc.ApplyAssignments(c.Request().Context(), adminID, req.Assignments, req.Mode)
	if err != nil {
		return writeError(c, err)
	}

	if res.Mode == model.ApplyArtifact && c.QueryParam("download") == "1" {
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+artifactFileName+`"`)
		return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", []byte(res.Artifact))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminImageHandler) startSession(c echo.Context) error {
	s, err := h.uc.StartSession(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, s)
}

func (h *AdminImageHandler) getSession(c echo.Context) error {
	s, err := h.uc.GetSession(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, s)
}

func (h *AdminImageHandler) applySession(c echo.Context) error {
	var req AssignmentsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	s, err := h.uc.ApplySession(c.Request().Context(), adminID, c.Param("id"), req.Assignments, req.Mode)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, s)
}

func (h *AdminImageHandler) restartSession(c echo.Context) error {
	s, err := h.uc.RestartSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, s)
}
