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

package script

import (
	"regexp"
	"strings"
)

// speakerTagPattern matches dialogue lines that already carry a speaker tag.
var speakerTagPattern = regexp.MustCompile(`^\[[^\]]+\]:\s`)

// metaLeadPattern matches the preamble sentence models like to open with
// ("Here's the script for...", "Certainly! Below is...").
var metaLeadPattern = regexp.MustCompile(`(?i)^(here'?s|here is|certainly|sure|of course|below is|this is the script|i'?ll write|i will write)\b`)

// wordCountTrailerPattern matches word-count footers and bare number lines.
var wordCountTrailerPattern = regexp.MustCompile(`(?i)^(\(?\s*word count:?\s*[\d,]+\s*(words)?\)?|\(?[\d,]+\s*words\)?|[\d,]+)$`)

// cleanSegmentBody normalizes raw model output into dialogue-only text:
// fences and lead-in meta sentences stripped, word-count trailers removed,
// consecutive duplicate lines collapsed, and a speaker tag prepended to any
// dialogue line missing one.
func cleanSegmentBody(raw, hostTag string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	lines := strings.Split(text, "\n")

	// Leading meta sentence.
	for len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if first == "" {
			lines = lines[1:]
			continue
		}
		if metaLeadPattern.MatchString(first) {
			lines = lines[1:]
			continue
		}
		break
	}

	// Word-count trailers.
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || wordCountTrailerPattern.MatchString(last) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}

	out := make([]string, 0, len(lines))
	previous := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
			previous = ""
			continue
		}
		// Models sometimes repeat a line when resuming after a pause.
		if trimmed == previous {
			continue
		}
		previous = trimmed
		if !speakerTagPattern.MatchString(trimmed) {
			trimmed = "[" + hostTag + "]: " + trimmed
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// countWords counts the spoken words in a cleaned body, excluding the
// speaker tags themselves.
func countWords(body string) int {
	total := 0
	for _, line := range strings.Split(body, "\n") {
		line = speakerTagPattern.ReplaceAllString(strings.TrimSpace(line), "")
		total += len(strings.Fields(line))
	}
	return total
}

// hostTagFor derives the bracketed speaker tag from a host name.
func hostTagFor(hostName string) string {
	tag := strings.ToUpper(strings.TrimSpace(hostName))
	if tag == "" {
		return "HOST"
	}
	return tag
}
