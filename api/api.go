/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vexogate/vexogate"
	"github.com/vexogate/vexogate/api/middleware"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/apierror"
)

type Api struct {
	gate   *vexogate.Gate
	config *config.Configuration
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	v1 := router.Group("/v1")
	v1.POST("/webhook/callback", a.ProviderCallback)

	merchant := v1.Group("", middleware.APIKeyAuth(a.config.Server.APIKey))
	merchant.POST("/initiate", a.InitiateOrder)
	merchant.GET("/order/:id/status", a.GetOrderStatus)

	admin := router.Group("/admin", middleware.AdminKeyAuth(a.config.Server.AdminKey))
	admin.GET("/orders", a.ListOrders)
	admin.POST("/orders/:id/approve", a.ApproveOrder)
	admin.POST("/orders/:id/manual-send", a.ManualSend)
	admin.POST("/orders/:id/rescue-fee", a.RescueFee)

	return a.router
}

func NewAPI(g *vexogate.Gate, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware("VEXOGATE"))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Api{gate: g, config: conf, router: r}
}

// respondError writes err with the status its code maps to. Internal details stay in the logs.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	var apiErr apierror.APIError
	if status == http.StatusInternalServerError || !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error. Please try again."})
		return
	}
	c.JSON(status, gin.H{"success": false, "code": apiErr.Code, "error": apiErr.Message})
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "errors": err.Error()})
}
