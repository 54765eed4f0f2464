package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/EduMesh/ClassLink/cmd/bootstrap"
	"github.com/EduMesh/ClassLink/pkg/config"
	"github.com/EduMesh/ClassLink/pkg/constants"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/registry"
	"github.com/EduMesh/ClassLink/pkg/relay"
	"github.com/EduMesh/ClassLink/pkg/session"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides ADDR")
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}

	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := bootstrap.PrintBannerFromFile("banner.txt", config.GlobalConfig.ServerName); err != nil {
		log.Fatalf("unload banner: %v", err)
	}
	bootstrap.LogConfigInfo()

	if *addr == "" {
		*addr = config.GlobalConfig.Addr
	}
	if !strings.HasPrefix(*addr, ":") && !strings.Contains(*addr, ":") {
		*addr = ":" + *addr
	}

	var sessions session.Resolver
	if base := config.GlobalConfig.SessionAPIBase; base != "" {
		sessions = session.NewHTTPResolver(base)
	} else {
		logger.Warn("SESSION_API_BASE not set, admitting all sessions")
		sessions = &session.StaticResolver{}
	}

	reg := registry.New(logger.Lg)
	sigRelay := relay.New(reg, sessions)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.GET(constants.HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"rooms":  reg.RoomCount(),
		})
	})
	r.GET(constants.MetricsPath, gin.WrapH(promhttp.Handler()))
	r.GET(constants.SignalingPath, func(c *gin.Context) {
		sigRelay.ServeWS(c.Writer, c.Request)
	})

	httpServer := &http.Server{
		Addr:           *addr,
		Handler:        r,
		ReadTimeout:    config.GlobalConfig.Server.ReadTimeout,
		WriteTimeout:   config.GlobalConfig.Server.WriteTimeout,
		IdleTimeout:    config.GlobalConfig.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		logger.Info("starting signaling server", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server run failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
