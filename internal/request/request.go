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

package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds outbound calls made through Call.
const DefaultTimeout = 10 * time.Second

// ToJsonReq serializes payload into a buffer ready to be used as a request body.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Call sends req as JSON and decodes a JSON answer into response when one is
// given. Non-2xx answers are returned as errors. Plain text 2xx bodies, such
// as Slack's "ok", are accepted.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: DefaultTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, fmt.Errorf("request to %s failed with status %d", req.URL.Host, resp.StatusCode)
	}

	if response == nil || len(body) == 0 || !json.Valid(body) {
		return resp, nil
	}
	return resp, json.Unmarshal(body, response)
}
