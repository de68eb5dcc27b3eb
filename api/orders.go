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
	"github.com/sirupsen/logrus"

	model2 "github.com/vexogate/vexogate/api/model"
)

// InitiateOrder opens an order and returns the deposit wallet with the provider checkout link.
func (a Api) InitiateOrder(c *gin.Context) {
	var req model2.InitiateOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": err.Error()})
		return
	}

	if err := req.ValidateInitiateOrder(); err != nil {
		respondInvalid(c, err)
		return
	}

	checkout, err := a.gate.CreateOrder(c.Request.Context(), req.ToOrderRequest())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model2.NewInitiateOrderResponse(checkout))
}

func (a Api) GetOrderStatus(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "id is required. pass id in the route /:id"})
		return
	}

	o, err := a.gate.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model2.NewOrderStatus(o, a.gate.ExplorerLinks(o)))
}

// ProviderCallback acknowledges on-ramp provider notifications. Payment detection relies on
// the chain, so the payload is only logged.
func (a Api) ProviderCallback(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	logrus.WithFields(logrus.Fields{
		"payload":   payload,
		"client_ip": c.ClientIP(),
	}).Info("Provider webhook received")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
