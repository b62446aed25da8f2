package server

import (
	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health       *handler.HealthHandler
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminProduct *handler.AdminProductHandler
	AdminImage   *handler.AdminImageHandler
}

// 公開ルートと /admin（JWT + ADMIN）を登録
func RegisterRoutes(e *echo.Echo, jwtSecret string, h Handlers) {
	h.Health.RegisterRoutes(e)
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e)
	h.Order.RegisterRoutes(e)

	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(jwtSecret))
	admin.Use(middleware.AdminRoleGuard())

	h.AdminProduct.RegisterRoutes(admin)
	h.AdminImage.RegisterRoutes(admin)
	h.Order.RegisterAdminRoutes(admin)
}
