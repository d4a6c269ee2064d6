// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides the typed generative model client. This file holds the
// local repair pass for structured output. Models frequently wrap their JSON
// in markdown fences or lead with a sentence of prose; the repair pass strips
// those wrappers and extracts the first balanced JSON value before giving up.
package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON value found in response")

// decodeStructured decodes raw into out, applying the repair pass when the
// payload does not decode as-is.
func decodeStructured(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}
	repaired, err := extractJSON(trimmed)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), out)
}

// extractJSON strips markdown fences and surrounding prose and returns the
// first balanced JSON object or array in the payload.
func extractJSON(raw string) (string, error) {
	s := stripFences(raw)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", errNoJSON
	}
	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSON
}

// stripFences removes a leading ```json (or bare ```) fence and its closing
// fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag on the fence line.
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
