package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/custody/api/middleware"
	model2 "github.com/blnkfinance/custody/api/model"
)

// SendTip pays a tip from the caller to the recipient, less the platform fee.
func (a Api) SendTip(c *gin.Context) {
	var req model2.SendTip
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateSendTip(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.custody.SendTip(c.Request.Context(), middleware.Caller(c), req.Recipient, req.Amount, req.PostID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
