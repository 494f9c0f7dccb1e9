// Command fedtrustd serves an HTTP API for validating OpenID Federation entities against a
// configured trust anchor.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oidf-tools/fedtrust/config"
	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/httpclient"
	"github.com/oidf-tools/fedtrust/logging"
	"github.com/oidf-tools/fedtrust/trustchain"
)

func main() {
	configFile := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootLogger := logging.New("info", "json")
		bootLogger.Fatal().Err(err).
			Str("code", string(trustchain.CodeConfigurationError)).
			Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	client := httpclient.New(httpclient.Options{
		Timeout:               cfg.Resolver.RequestTimeout,
		InsecureSkipTLSVerify: cfg.Resolver.InsecureSkipTLSVerify,
	})

	validator, err := trustchain.NewValidator(cfg.TrustAnchor, trustchain.ValidatorOptions{
		HTTPClient: &client,
		CacheTTL: cfg.Cache.TTL,
		MaxDepth: cfg.Resolver.MaxDepth,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).
			Str("code", string(trustchain.CodeConfigurationError)).
			Msg("failed to construct validator")
	}

	sweepCtx, stopSweeping := context.WithCancel(context.Background())
	defer stopSweeping()
	go validator.Cache().StartSweeping(sweepCtx, cfg.Cache.SweepInterval)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	setupRoutes(router, validator)

	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	go func() {
		trustAnchor := validator.TrustAnchor()
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("trust_anchor", trustAnchor.String()).
			Msg("fedtrustd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
}

// setupRoutes configures all the routes
func setupRoutes(router *gin.Engine, validator *trustchain.Validator) {
	router.GET("/validate", validateHandler(validator))
	router.GET("/healthz", healthHandler(validator))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/cache/stats", cacheStatsHandler(validator))
	router.DELETE("/cache", cacheClearHandler(validator))
}

// validateHandler validates the entity named by the sub query parameter. Valid entities get
// HTTP 200, invalid ones HTTP 403; both carry the full validation result.
func validateHandler(validator *trustchain.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.Query(entity.QueryParamSub)
		if sub == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sub query parameter is required"})
			return
		}

		result := validator.Validate(c.Request.Context(), sub)

		status := http.StatusOK
		if !result.IsValid {
			status = http.StatusForbidden
		}

		c.JSON(status, result)
	}
}

func healthHandler(validator *trustchain.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		trustAnchor := validator.TrustAnchor()
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"trust_anchor": trustAnchor.String(),
		})
	}
}

func cacheStatsHandler(validator *trustchain.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"entries": validator.Cache().Len(),
		})
	}
}

func cacheClearHandler(validator *trustchain.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		validator.Cache().Clear()
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}
