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

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	APIKeyHeader   = "X-VexoGate-API-Key"
	AdminKeyHeader = "X-VexoGate-Admin-Key"
)

// APIKeyAuth guards the merchant routes with the shared API key.
func APIKeyAuth(key string) gin.HandlerFunc {
	return keyAuth(APIKeyHeader, key)
}

// AdminKeyAuth guards the review routes with the admin key.
func AdminKeyAuth(key string) gin.HandlerFunc {
	return keyAuth(AdminKeyHeader, key)
}

// keyAuth compares header against expected in constant time. An unset expected key
// rejects every request instead of leaving the routes open.
func keyAuth(header, expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			logrus.WithField("header", header).Error("Authentication key is not configured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Authentication is not configured"})
			return
		}

		key := c.GetHeader(header)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authentication required. Use " + header + " header"})
			return
		}

		if !secureCompare(expected, key) {
			logrus.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			}).Warn("Rejected request with invalid key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid API key"})
			return
		}

		c.Next()
	}
}
