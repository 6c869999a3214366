package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/blnkfinance/custody/api/model"
)

// GetInstance returns a workflow instance of any kind with its custody balance.
func (a Api) GetInstance(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	inst, err := a.custody.GetInstance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	account, err := a.custody.GetCustodyAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.InstanceResponse{Instance: inst, CustodyBalance: account.Balance})
}

func (a Api) GetInstanceEvents(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.GetEventRecords(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetInstanceEntries(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	resp, err := a.custody.GetLedgerEntries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
