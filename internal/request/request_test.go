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

package request_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vexogate/vexogate/internal/request"
)

func TestToJsonReq_Success(t *testing.T) {
	payload := map[string]string{
		"key": "value",
	}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.NoError(t, err)

	expectedJSON, _ := json.Marshal(payload)
	assert.Equal(t, expectedJSON, reqBuffer.Bytes())
}

func TestToJsonReq_Fail(t *testing.T) {
	payload := map[string]interface{}{
		"key": make(chan int),
	}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.Error(t, err)
	assert.Nil(t, reqBuffer)
}

func TestCall_DecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	var response map[string]string
	resp, err := request.Call(req, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", response["status"])
}

func TestCall_PlainTextOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	var response map[string]interface{}
	_, err = request.Call(req, &response)
	assert.NoError(t, err)
	assert.Nil(t, response)
}

func TestCall_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	resp, err := request.Call(req, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCall_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)

	_, err = request.Call(req, nil)
	assert.Error(t, err)
}
