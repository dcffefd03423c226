// Package main library borrowing API.
//
// @title           Library Service API
// @version         1.0
// @description     Book catalog and borrowing management (books, borrowings, users).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/MaksymBus/library-service-api/app/echoServer"
	authctrl "github.com/MaksymBus/library-service-api/app/echoServer/controller/auth"
	bookctrl "github.com/MaksymBus/library-service-api/app/echoServer/controller/book"
	borrowctrl "github.com/MaksymBus/library-service-api/app/echoServer/controller/borrowing"
	"github.com/MaksymBus/library-service-api/app/echoServer/jsonx"
	"github.com/MaksymBus/library-service-api/app/echoServer/policy"
	"github.com/MaksymBus/library-service-api/app/echoServer/validation"
	"github.com/MaksymBus/library-service-api/config"
	authrepo "github.com/MaksymBus/library-service-api/repository/auth"
	bookrepo "github.com/MaksymBus/library-service-api/repository/book"
	borrowrepo "github.com/MaksymBus/library-service-api/repository/borrowing"
	telegramrepo "github.com/MaksymBus/library-service-api/repository/telegram"
	authsvc "github.com/MaksymBus/library-service-api/service/auth"
	booksvc "github.com/MaksymBus/library-service-api/service/book"
	borrowsvc "github.com/MaksymBus/library-service-api/service/borrowing"
	"github.com/MaksymBus/library-service-api/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ar := authrepo.New(db)
	br := bookrepo.New(db)
	store := borrowrepo.New(db)
	tg := telegramrepo.NewHTTP(cfg.TelegramBotToken, cfg.TelegramChatID)

	// services
	as := authsvc.New(ar, cfg.JWTSecret)
	bs := booksvc.New(br)
	bws := borrowsvc.New(store, tg, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, Allow: policy.StaffWriteReadAll, V: v, Log: log}
	borrowC := &borrowctrl.Controller{Svc: bws, Allow: policy.AuthenticatedOnly, V: v, Log: log}

	// echo
	e := echo.New()
	e.JSONSerializer = jsonx.Serializer{}
	e.Validator = validation.New()
	echoServer.RegisterMiddlewares(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Info("starting server", "port", port, "env", cfg.Env)

	e.Logger.Fatal(e.Start(":" + port))
}
