package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // string
)

// AdminClaims は管理APIのトークン。subは数値でも数字の文字列でもよい。
type AdminClaims struct {
	Sub  json.Number `json:"sub"`
	Role string      `json:"role"`
	jwt.RegisteredClaims
}

var errBadPrincipal = errors.New("token has no usable sub/role")

// principal は sub と role を取り出す
func (c *AdminClaims) principal() (int64, string, error) {
	id, err := c.Sub.Int64()
	if err != nil || id <= 0 || c.Role == "" {
		return 0, "", errBadPrincipal
	}
	return id, c.Role, nil
}

// Authorization: Bearer <token> からtokenを抜く
func bearerToken(r *http.Request) (string, bool) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// AuthJWT はHS256の管理トークンを検証し、管理者IDとroleをcontextに入れる。
// トークンの発行はこのサービスでは行わない。
func AuthJWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return key, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return unauthorized(c)
			}

			//署名・alg・expを見る
			claims := &AdminClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				return unauthorized(c)
			}

			userID, role, err := claims.principal()
			if err != nil {
				return unauthorized(c)
			}

			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)
			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
}
