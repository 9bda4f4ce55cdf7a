package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zhulink-cascade/internal/app"
	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/handlers"
	"zhulink-cascade/internal/router"
	"zhulink-cascade/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	config.MustLoad(*configPath)
	conf := config.Conf
	utils.SetupLogger(conf.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database and services
	a, err := app.New(ctx, conf)
	if err != nil {
		slog.Error("初始化失败", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// 每日定时清理软删除数据
	if conf.Reaper.Enabled {
		a.Reaper.Start()
	}

	// Initialize Gin
	gin.SetMode(conf.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Setup Sessions
	store := cookie.NewStore([]byte(conf.Session.Secret))
	r.Use(sessions.Sessions(conf.Session.Name, store))

	router.RegisterRoutes(r, handlers.NewContentHandler(a.Authorizer, a.Engine, a.Resolver))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Server.Port),
		Handler: r,
	}
	go func() {
		slog.Info("Cascade server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
}
