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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/api/middleware"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/apierror"
)

type Api struct {
	custody *custody.Custody
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/platform", a.InitializePlatform)
	router.GET("/platform", a.GetPlatform)
	router.GET("/platform/stats/:kind", a.GetStats)

	router.GET("/instances/:id", a.GetInstance)
	router.GET("/instances/:id/events", a.GetInstanceEvents)
	router.GET("/instances/:id/entries", a.GetInstanceEntries)
	router.GET("/events/:id/registrations", a.GetRegistrations)
	router.GET("/subscriptions/:id/payment-requests/latest", a.GetLatestPaymentRequest)
	router.POST("/subscriptions/:id/check", a.CheckSubscription)

	acting := router.Group("/", middleware.RequireCaller())

	acting.PUT("/platform/fee", a.UpdatePlatformFee)

	acting.POST("/wagers", a.CreateWager)
	acting.POST("/wagers/:id/join", a.JoinWager)
	acting.POST("/wagers/:id/complete", a.CompleteWager)
	acting.POST("/wagers/:id/cancel", a.CancelWager)
	acting.POST("/wagers/:id/expire", a.ExpireWager)
	acting.POST("/wagers/:id/dispute", a.DisputeWager)

	acting.POST("/tips", a.SendTip)

	acting.POST("/events", a.CreateEvent)
	acting.POST("/events/:id/tickets", a.PurchaseTickets)
	acting.POST("/events/:id/check-in", a.CheckIn)
	acting.POST("/events/:id/withdraw", a.WithdrawEventFunds)
	acting.POST("/events/:id/cancel", a.CancelEvent)

	acting.POST("/subscriptions", a.Subscribe)
	acting.POST("/subscriptions/:id/payment-requests", a.RequestPayment)
	acting.POST("/subscriptions/:id/approve", a.ApprovePayment)
	acting.POST("/subscriptions/:id/reject", a.RejectPayment)
	acting.POST("/subscriptions/:id/payment-type", a.ChangePaymentType)

	return a.router
}

func NewAPI(c *custody.Custody) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.Tracing.ServiceName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{custody: c, router: r}
}

// respondError writes err with the status of its error class.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if code, ok := apierror.CodeOf(err); ok {
		body["code"] = code
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), body)
}

func instanceID(c *gin.Context) (string, bool) {
	id, passed := c.Params.Get("id")
	if !passed || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return "", false
	}
	return id, true
}
