package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router
func SetupRouter(handlers *Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(logger), gin.Recovery())

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/actions/templates", handlers.ActionTemplates)

	relay := router.Group("/relay")
	{
		relay.POST("/execute-tap", handlers.ExecuteTap)
		relay.POST("/execute-payment", handlers.ExecutePayment)
	}

	bridges := router.Group("/bridge-requests/:requestId")
	{
		bridges.GET("", handlers.GetBridgeRequest)
		bridges.POST("/complete", handlers.CompleteBridgeRequest)
		bridges.POST("/verify", handlers.VerifyBridgeRequest)
	}

	push := router.Group("/push")
	{
		push.GET("/subscribe", handlers.PublicKey)
		push.POST("/subscribe", handlers.Subscribe)
	}

	return router
}
