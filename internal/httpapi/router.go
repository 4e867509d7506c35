package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/salesbot/internal/common"
	"github.com/suPer8Hu/salesbot/internal/httpapi/handlers"
	"github.com/suPer8Hu/salesbot/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, adminSecret string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.AccessLog())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// gateway webhook
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)

	// operator API (JWT required)
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(adminSecret))
	admin.GET("/orders", h.ListOrders)
	admin.POST("/orders/:id/deliver", h.DeliverOrder)
	return r
}
