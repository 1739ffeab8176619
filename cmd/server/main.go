package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/kavehrad/traffic-dashboard/internal/bootstrap"
	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/database"
	"github.com/kavehrad/traffic-dashboard/internal/handler"
	"github.com/kavehrad/traffic-dashboard/internal/middleware"
	"github.com/kavehrad/traffic-dashboard/internal/queue"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
	"github.com/kavehrad/traffic-dashboard/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	// The owner account must exist before the server accepts requests;
	// otherwise the administrative surface would briefly have no possible
	// caller.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	res, err := bootstrap.EnsureOwner(ctx, cfg, users)
	cancel()
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if res.Created {
		log.Printf("bootstrap: owner user id=%d ready", res.UserID)
	}

	// Out-of-band credential delivery. The consumer reconnects on its own;
	// losing the broker degrades delivery, not authentication.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("auth-consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, users, tokens)
	acctH := handler.NewAccountHandler(cfg, users, tokens)
	ownerH := handler.NewOwnerUserHandler(cfg, users)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, acctH, limiter, users, cfg.JWTSecret)
	router.RegisterOwner(e, ownerH, users, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
