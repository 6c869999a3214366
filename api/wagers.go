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

// CreateWager opens a wager with the caller as creator and escrows their stake.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 400 Bad Request: If the body is malformed or the stake is out of bounds.
// - 409 Conflict: If a wager with the same id exists.
// - 201 Created: If the wager is open.
func (a Api) CreateWager(c *gin.Context) {
	var req model2.CreateWager
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateWager(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.CreateWager(c.Request.Context(), custody.CreateWagerParams{
		WagerID:  req.WagerID,
		Creator:  middleware.Caller(c),
		Stake:    req.Stake,
		GameType: model.GameType(req.GameType),
		GameData: req.GameData,
		MetaData: req.MetaData,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// JoinWager matches the stake of an open wager on behalf of the caller.
func (a Api) JoinWager(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.JoinWager(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CompleteWager settles an active wager to the winner named in the body.
//
// Responses:
// - 400 Bad Request: If the winner is not a participant.
// - 403 Forbidden: If the caller may not resolve the wager.
// - 409 Conflict: If the wager is not active.
// - 200 OK: If the pool was paid out.
func (a Api) CompleteWager(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req model2.CompleteWager
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCompleteWager(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.CompleteWager(c.Request.Context(), id, middleware.Caller(c), req.Winner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CancelWager(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.CancelWager(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ExpireWager refunds an open wager whose join deadline has passed. Anyone may trigger it.
func (a Api) ExpireWager(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.ExpireWager(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) DisputeWager(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req model2.DisputeWager
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.DisputeWager(c.Request.Context(), id, middleware.Caller(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
