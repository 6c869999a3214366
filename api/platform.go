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

	"github.com/blnkfinance/custody/api/middleware"
	model2 "github.com/blnkfinance/custody/api/model"
	"github.com/blnkfinance/custody/model"
)

// InitializePlatform creates the platform singleton.
//
// Responses:
// - 400 Bad Request: If the body is malformed or the fee rate is above the ceiling.
// - 409 Conflict: If the platform is already initialized.
// - 201 Created: If the platform is initialized.
func (a Api) InitializePlatform(c *gin.Context) {
	var req model2.CreatePlatform
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreatePlatform(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.InitializePlatform(c.Request.Context(), req.Authority, req.Treasury, req.FeeRateBps)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model2.NewPlatformResponse(resp))
}

func (a Api) GetPlatform(c *gin.Context) {
	resp, err := a.custody.GetPlatformConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.NewPlatformResponse(resp))
}

// UpdatePlatformFee changes the fee rate. Only the platform authority may call it.
func (a Api) UpdatePlatformFee(c *gin.Context) {
	var req model2.UpdatePlatformFee
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateUpdatePlatformFee(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.UpdatePlatformFee(c.Request.Context(), middleware.Caller(c), *req.FeeRateBps)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.NewPlatformResponse(resp))
}

func (a Api) GetStats(c *gin.Context) {
	kind := c.Param("kind")
	resp, err := a.custody.GetStats(c.Request.Context(), model.Kind(kind))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
