package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
	logger "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Logger"
	metrics "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Metrics"
	publisher "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Publisher"
)

type breakerSink interface {
	Breaker() *publisher.CircuitBreaker
}

// Controller serves liveness, readiness and Prometheus metrics
type Controller struct {
	publisher  *publisher.Publisher
	collectors *metrics.Collectors
	sessionID  string
}

func NewController(pub *publisher.Publisher, collectors *metrics.Collectors, sessionID string) *Controller {
	return &Controller{publisher: pub, collectors: collectors, sessionID: sessionID}
}

// RegisterRoutes registers the health routes with Gin
func (c *Controller) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.collectors.Registry, promhttp.HandlerOpts{})))
}

func (c *Controller) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *Controller) HealthReady(ctx *gin.Context) {
	body := gin.H{
		"session_id": c.sessionID,
		"messages":   c.publisher.Count(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	sink := c.publisher.Sink()
	if sink == nil {
		body["status"] = "ready"
		body["mode"] = "simulation"
		ctx.JSON(http.StatusOK, body)
		return
	}

	ready := sink.IsConnected()
	body["mode"] = "live"
	body["sink"] = gin.H{"name": sink.Name(), "connected": sink.IsConnected()}
	if bs, ok := sink.(breakerSink); ok {
		status := bs.Breaker().Status()
		body["circuit_breaker"] = status
		ready = ready && bs.Breaker().State() != publisher.StateOpen
	}

	if ready {
		body["status"] = "ready"
		ctx.JSON(http.StatusOK, body)
		return
	}
	body["status"] = "unhealthy"
	ctx.JSON(http.StatusServiceUnavailable, body)
}

// Server runs the health routes on their own port
type Server struct {
	srv    *http.Server
	logger *logger.Logger
}

func NewServer(cfg *config.HealthConfig, controller *Controller, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	controller.RegisterRoutes(router)

	return &Server{
		srv: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Dashboards poll the read-only endpoints from the browser
func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info("Health server starting on " + s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorWithError(err, "Health server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
