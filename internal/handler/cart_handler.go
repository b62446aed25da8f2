package handler

import (
	"net/http"
	"time"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// カートのセッションcookie名
const CartCookieName = "gs_cart"

const cartCookieMaxAge = 30 * 24 * time.Hour

// /cartのHTTP（ログイン不要、cookieでセッションを持つ）
type CartHandler struct {
	uc     *usecase.CartUsecase
	secure bool
}

// DI
func NewCartHandler(uc *usecase.CartUsecase, secureCookie bool) *CartHandler {
	return &CartHandler{uc: uc, secure: secureCookie}
}

type AddCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type CartItemStatusResponse struct {
	ProductID int64 `json:"productId"`
	InCart    bool  `json:"inCart"`
	Quantity  int64 `json:"quantity"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// /cart, /cart/items/{product_id} を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/cart")

	g.GET("", h.getCart)
	g.DELETE("", h.clearCart)
	g.GET("/quote", h.quote)
	g.GET("/checkout", h.checkout)
	g.POST("/items", h.addToCart)
	g.GET("/items/:product_id", h.itemStatus)
	g.PATCH("/items/:product_id", h.patchItem)
	g.DELETE("/items/:product_id", h.deleteItem)
}

func (h *CartHandler) sessionKey(c echo.Context) string {
	return cartSession(c, h.secure)
}

// cookieのセッションキーを返す。無い・不正なら発行してSet-Cookieする。
func cartSession(c echo.Context, secure bool) string {
	if ck, err := c.Cookie(CartCookieName); err == nil && usecase.ValidSessionKey(ck.Value) {
		return ck.Value
	}

	key := usecase.NewSessionKey()
	c.SetCookie(&http.Cookie{
		Name:     CartCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(cartCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

func (h *CartHandler) getCart(c echo.Context) error {
	out, err := h.uc.GetCart(c.Request().Context(), h.sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) quote(c echo.Context) error {
	out, err := h.uc.Quote(c.Request().Context(), h.sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addToCart(c echo.Context) error {
	key := h.sessionKey(c)

	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	//quantity省略時は1
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	out, err := h.uc.AddToCart(c.Request().Context(), key, req.ProductID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) itemStatus(c echo.Context) error {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	key := h.sessionKey(c)
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, CartItemStatusResponse{
		ProductID: productID,
		InCart:    h.uc.IsInCart(ctx, key, productID),
		Quantity:  h.uc.ItemQuantity(ctx, key, productID),
	})
}

func (h *CartHandler) patchItem(c echo.Context) error {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateQuantity(c.Request().Context(), h.sessionKey(c), productID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	out, err := h.uc.RemoveFromCart(c.Request().Context(), h.sessionKey(c), productID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) clearCart(c echo.Context) error {
	out, err := h.uc.ClearCart(c.Request().Context(), h.sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// WhatsAppの注文リンク
func (h *CartHandler) checkout(c echo.Context) error {
	link, err := h.uc.CheckoutLink(c.Request().Context(), h.sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, CheckoutResponse{URL: link})
}
