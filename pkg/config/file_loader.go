/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	errReadConfig  = errors.New("failed to read config file")
	errParseConfig = errors.New("failed to parse config file")
)

// FileConfigLoader reads gateway configuration from a JSON file on local
// disk. It is the only loader the gateway ships; alternative sources plug
// in behind ConfigLoader.
type FileConfigLoader struct{}

// Load reads path and unmarshals its JSON contents into dst. Both failure
// modes wrap a sentinel so callers can tell a missing file from a
// malformed one.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w %q: %w", errReadConfig, path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w %q: %w", errParseConfig, path, err)
	}

	return nil
}
