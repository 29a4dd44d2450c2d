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

// Package json wraps the drop-in jsoniter codec so every package
// serializes the same way.
package json

import (
	stdjson "encoding/json"

	jsoniter "github.com/json-iterator/go"
)

var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage aliases the standard library type: it carries MarshalJSON/
// UnmarshalJSON, so a raw body stays a JSON object under either codec.
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) {
	return JSON.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return JSON.Unmarshal(data, v)
}
