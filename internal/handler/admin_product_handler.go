package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ProductCreateRequest は商品登録の入力です。
type ProductCreateRequest struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Description string `json:"description"`
	InStock     *bool  `json:"inStock"`
	Featured    bool   `json:"featured"`
	Badge       string `json:"badge"`
}

// ProductPatchRequest は部分更新。送られた項目だけ変える。
type ProductPatchRequest struct {
	Name        *string `json:"name"`
	Price       *string `json:"price"`
	Category    *string `json:"category"`
	Image       *string `json:"image"`
	Description *string `json:"description"`
	InStock     *bool   `json:"inStock"`
	Featured    *bool   `json:"featured"`
	Badge       *string `json:"badge"`
}

type DiscountCreateRequest struct {
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Type             model.DiscountType  `json:"type"`
	Value            float64             `json:"value"`
	Scope            model.DiscountScope `json:"applicableProducts"`
	CategoryFilter   string              `json:"categoryFilter"`
	SpecificProducts []int64             `json:"specificProducts"`
	MinQuantity      int64               `json:"minQuantity"`
	MaxQuantity      int64               `json:"maxQuantity"`
	StartDate        *time.Time          `json:"startDate"`
	EndDate          *time.Time          `json:"endDate"`
	IsActive         *bool               `json:"isActive"`
}

// /admin/products, /admin/discounts, /admin/audit-logs をまとめる
type AdminProductHandler struct {
	uc        *usecase.ProductUsecase
	discounts *usecase.DiscountUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase, discounts *usecase.DiscountUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc, discounts: discounts}
}

// adminグループ（AuthJWT + AdminRoleGuard 済み）に登録
func (h *AdminProductHandler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/products", h.createProduct)
	admin.PATCH("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)

	admin.GET("/discounts", h.listDiscounts)
	admin.POST("/discounts", h.createDiscount)
	admin.DELETE("/discounts/:id", h.deleteDiscount)

	admin.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	var req ProductCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	//inStock省略時は在庫あり
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}

	p, err := h.uc.AdminCreateProduct(
		c.Request().Context(),
		adminID,
		usecase.AdminCreateProductInput{
			Name:        req.Name,
			Price:       req.Price,
			Category:    req.Category,
			Image:       req.Image,
			Description: req.Description,
			InStock:     inStock,
			Featured:    req.Featured,
			Badge:       req.Badge,
		},
	)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ProductPatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	p, err := h.uc.AdminUpdateProduct(c.Request().Context(), adminID, id, model.ProductPatch{
		Name:        req.Name,
		Price:       req.Price,
		Category:    req.Category,
		Image:       req.Image,
		Description: req.Description,
		InStock:     req.InStock,
		Featured:    req.Featured,
		Badge:       req.Badge,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	if err := h.uc.AdminDeleteProduct(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AdminProductHandler) listDiscounts(c echo.Context) error {
	rules, err := h.discounts.ListRules(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"items": rules})
}

func (h *AdminProductHandler) createDiscount(c echo.Context) error {
	var req DiscountCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := h.discounts.CreateRule(c.Request().Context(), adminID, usecase.CreateDiscountInput{
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		Value:          req.Value,
		Scope:          req.Scope,
		CategoryFilter: req.CategoryFilter,
		ProductIDs:     req.SpecificProducts,
		MinQuantity:    req.MinQuantity,
		MaxQuantity:    req.MaxQuantity,
		StartsAt:       req.StartDate,
		EndsAt:         req.EndDate,
		Active:         active,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, rule)
}

func (h *AdminProductHandler) deleteDiscount(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	if err := h.discounts.DeleteRule(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AdminProductHandler) listAuditLogs(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	// limit（default 50）, resource_type, resource_id, action, before_id
	in := usecase.AuditLogQuery{
		Limit:        50,
		ResourceType: model.AuditResourceType(c.QueryParam("resource_type")),
		Action:       model.AuditAction(c.QueryParam("action")),
	}
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		in.Limit = l
	}
	for name, dst := range map[string]*int64{"resource_id": &in.ResourceID, "before_id": &in.BeforeID} {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
			}
			*dst = n
		}
	}

	page, err := h.uc.AdminListAuditLogs(c.Request().Context(), adminID, in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, page)
}
