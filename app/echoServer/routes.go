package echoServer

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/MaksymBus/library-service-api/app/echoServer/controller/auth"
	"github.com/MaksymBus/library-service-api/app/echoServer/controller/book"
	"github.com/MaksymBus/library-service-api/app/echoServer/controller/borrowing"
	"github.com/MaksymBus/library-service-api/app/echoServer/policy"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller

	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Catalog reads are open to everyone, authenticated or not.
	pub.GET("/books", c.Book.List)
	pub.GET("/books/:id", c.Book.Detail)

	// Auth
	authed := e.Group("/v1")
	authed.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
	}))
	authed.Use(identityFromClaims)

	// Catalog writes (the policy func rejects non-staff)
	authed.POST("/books", c.Book.Create)
	authed.PUT("/books/:id", c.Book.Update)
	authed.DELETE("/books/:id", c.Book.Delete)

	// Borrowings
	authed.GET("/borrowings", c.Borrowing.List)
	authed.GET("/borrowings/:id", c.Borrowing.Detail)
	authed.POST("/borrowings", c.Borrowing.Create)
	authed.POST("/borrowings/:id/return", c.Borrowing.Return)
}

// identityFromClaims turns the verified token into a policy.Identity
// for the handlers downstream.
func identityFromClaims(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tok, ok := ctx.Get("user").(*jwt.Token)
		if !ok || tok == nil {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		sub, ok := claims["sub"].(float64)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		email, _ := claims["email"].(string)
		staff, _ := claims["staff"].(bool)

		policy.SetIdentity(ctx, policy.Identity{
			UserID:        int64(sub),
			Email:         email,
			Staff:         staff,
			Authenticated: true,
		})
		return next(ctx)
	}
}
