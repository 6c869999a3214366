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

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/api/middleware"
	model2 "github.com/blnkfinance/custody/api/model"
	"github.com/blnkfinance/custody/model"
)

// CreateEvent opens a ticketed event organized by the caller.
//
// Responses:
// - 400 Bad Request: If the body is malformed, a date is unparsable or the sale window is invalid.
// - 409 Conflict: If an event with the same id exists.
// - 201 Created: If the event is open for sales.
func (a Api) CreateEvent(c *gin.Context) {
	var req model2.CreateEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateEvent(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	eventDate, publicSale, err := req.Times()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.CreateEvent(c.Request.Context(), custody.CreateEventParams{
		EventID:        req.EventID,
		Organizer:      middleware.Caller(c),
		Name:           req.Name,
		Description:    req.Description,
		Location:       req.Location,
		TicketPrice:    req.TicketPrice,
		MaxTickets:     req.MaxTickets,
		EventDate:      eventDate,
		PublicSaleTime: publicSale,
		MetaData:       req.MetaData,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// PurchaseTickets buys count tickets of a tier for the caller.
func (a Api) PurchaseTickets(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req model2.PurchaseTickets
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidatePurchaseTickets(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.PurchaseTickets(c.Request.Context(), id, middleware.Caller(c), req.Count, model.Tier(req.Tier))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CheckIn(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.CheckIn(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// WithdrawEventFunds pays the ticket revenue to the organizer once the event date passed.
func (a Api) WithdrawEventFunds(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.WithdrawEventFunds(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelEvent refunds every registration and closes the event.
func (a Api) CancelEvent(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.CancelEvent(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetRegistrations(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.GetRegistrations(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
