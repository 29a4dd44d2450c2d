/*

Warden - Lumichat Moderation Backend
Copyright (C) 2025 Lumichat Authors, https://github.com/lumichat

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

Warden is provided “as is” without warranty of any kind, either expressed or implied.
Use at your own risk. The maintainers shall not be liable for any damages or data loss
resulting from the use or misuse of this software.
*/

// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumichat/warden/json"
)

const fetchTimeout = 10 * time.Second

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// HTTPProvider fetches synthesis credentials from the provider's
// internal token endpoint.
type HTTPProvider struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

func NewHTTPProvider(endpoint, secret string) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

func (p *HTTPProvider) FetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, nil)
	if err != nil {
		return "", 0, err
	}
	if p.secret != "" {
		req.Header.Set("Authorization", "Bearer "+p.secret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("token endpoint: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint: status %d, body: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.JSON.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("token endpoint: decoding response: %w", err)
	}
	if tr.Token == "" || tr.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("token endpoint: empty token or lifetime in response")
	}
	return tr.Token, time.Duration(tr.ExpiresIn) * time.Second, nil
}
