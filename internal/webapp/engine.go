package webapp

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/robalb/mnodemo/internal/maestrano"
	"github.com/robalb/mnodemo/internal/metrics"
)

type marketplaceInfo struct {
	SSOInitURL    string `json:"sso_init_url"`
	SSOConsumeURL string `json:"sso_consume_url"`
}

func NewEngine(logger *zap.Logger, m *metrics.Metrics, appHost string, marketplaces map[string]*maestrano.Marketplace) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(logger.Named("http")))
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Next()
		m.Observe(c.Request.Method, c.Writer.Status())
	})
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "Upgrade", "Cookie"},
		ExposeHeaders:    []string{"Link"},
		AllowCredentials: true,
		MaxAge:           5 * time.Minute,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	sso := make(map[string]marketplaceInfo, len(marketplaces))
	for name, mp := range marketplaces {
		sso[name] = marketplaceInfo{
			SSOInitURL:    mp.SSOInitURL(),
			SSOConsumeURL: mp.SSOConsumeURL(),
		}
	}
	router.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app_host":          appHost,
			"maestrano_version": maestrano.Version,
			"marketplaces":      sso,
		})
	})

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
