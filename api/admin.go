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
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/vexogate/vexogate/api/model"
	"github.com/vexogate/vexogate/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ListOrders pages through orders of one status. Manual review is the default queue.
func (a Api) ListOrders(c *gin.Context) {
	status := model.StatusManualReview
	if raw := c.Query("status"); raw != "" {
		parsed, err := model.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		status = parsed
	}

	limit, ok := queryInt(c, "limit", defaultPageSize)
	if !ok || limit == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "offset must be a non-negative integer"})
		return
	}

	orders, err := a.gate.ListOrders(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": status, "orders": orders})
}

func (a Api) ApproveOrder(c *gin.Context) {
	o, err := a.gate.ForceApprove(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.ActionResponse{Success: true, Order: o})
}

func (a Api) ManualSend(c *gin.Context) {
	var req model2.ManualSend
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": err.Error()})
		return
	}
	if err := req.ValidateManualSend(); err != nil {
		respondInvalid(c, err)
		return
	}

	o, hash, err := a.gate.ManualSend(c.Request.Context(), c.Param("id"), req.Wallet, req.Amount)
	if err != nil {
		a.respondSendError(c, hash, err)
		return
	}

	c.JSON(http.StatusOK, model2.ActionResponse{Success: true, Order: o, TxHash: hash, TxURL: a.config.Chain.TxURL(hash)})
}

func (a Api) RescueFee(c *gin.Context) {
	o, hash, err := a.gate.RescueFee(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondSendError(c, hash, err)
		return
	}

	c.JSON(http.StatusOK, model2.ActionResponse{Success: true, Order: o, TxHash: hash, TxURL: a.config.Chain.TxURL(hash)})
}

// respondSendError reports a failed operator send. When a hash came back the transaction may
// still land, so the operator gets the hash instead of a plain error.
func (a Api) respondSendError(c *gin.Context, hash string, err error) {
	if hash == "" {
		respondError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"order_id": c.Param("id"), "tx_hash": hash}).WithError(err).Error("Operator send outcome unknown")
	c.JSON(http.StatusBadGateway, gin.H{
		"success": false,
		"error":   "Send outcome unknown, check the transaction before retrying",
		"tx_hash": hash,
		"tx_url":  a.config.Chain.TxURL(hash),
	})
}
