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

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Settlement outcomes.
	ErrChainUnavailable    ErrorCode = "CHAIN_UNAVAILABLE"
	ErrInsufficientGas     ErrorCode = "INSUFFICIENT_GAS"
	ErrConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"
	ErrThresholdExceeded   ErrorCode = "THRESHOLD_EXCEEDED"
	ErrPartialDistribution ErrorCode = "PARTIAL_DISTRIBUTION_FAILURE"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Details when it is itself an error.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewAPIError builds an APIError and logs its details. Details must never hold key material.
func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.WithField("code", code).Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Is reports whether err carries an APIError with the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrUnauthorized:
			return http.StatusUnauthorized
		case ErrChainUnavailable:
			return http.StatusServiceUnavailable
		case ErrInsufficientGas, ErrThresholdExceeded:
			return http.StatusUnprocessableEntity
		case ErrConfirmationTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
