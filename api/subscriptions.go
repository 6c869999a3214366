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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/custody/api/middleware"
	model2 "github.com/blnkfinance/custody/api/model"
	"github.com/blnkfinance/custody/model"
)

// Subscribe starts a subscription for the caller and collects the first period.
func (a Api) Subscribe(c *gin.Context) {
	var req model2.Subscribe
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateSubscribe(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.Subscribe(c.Request.Context(), middleware.Caller(c), model.PaymentType(req.PaymentType))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type subscriptionAction func(ctx context.Context, subscriptionID, caller string) (*model.Instance, error)

// subscriptionHandler adapts a caller-driven subscription transition to a route on /subscriptions/:id.
func subscriptionHandler(action subscriptionAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := instanceID(c)
		if !ok {
			return
		}

		resp, err := action(c.Request.Context(), id, middleware.Caller(c))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func (a Api) RequestPayment(c *gin.Context) {
	subscriptionHandler(a.custody.RequestPayment)(c)
}

func (a Api) ApprovePayment(c *gin.Context) {
	subscriptionHandler(a.custody.ApprovePayment)(c)
}

func (a Api) RejectPayment(c *gin.Context) {
	subscriptionHandler(a.custody.RejectPayment)(c)
}

// CheckSubscription expires a subscription whose grace period has run out. Anyone may trigger it.
func (a Api) CheckSubscription(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.CheckSubscription(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ChangePaymentType(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req model2.ChangePaymentType
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateChangePaymentType(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.ChangePaymentType(c.Request.Context(), id, middleware.Caller(c), model.PaymentType(req.PaymentType))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetLatestPaymentRequest(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.GetLatestPaymentRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
