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

// Package search wraps the video platform's Data API behind a typed client.
// This file parses the channel reference forms users paste into the UI.
package search

import (
	"net/url"
	"strings"

	"github.com/creatorscope/channelintel/internal/core/errs"
)

type channelRefKind int

const (
	refInvalid channelRefKind = iota
	refChannelID
	refHandle
	refUsername
)

// parseChannelRef classifies a channel reference. Accepted forms:
//
//	UCxxxxxxxxxxxxxxxxxxxxxx          bare channel id
//	@handle                           bare handle
//	https://www.youtube.com/channel/UC...
//	https://www.youtube.com/@handle
//	https://www.youtube.com/user/name
//	https://www.youtube.com/c/name
func parseChannelRef(ref string) (channelRefKind, string, error) {
	if strings.HasPrefix(ref, "@") && !strings.Contains(ref, "/") {
		return refHandle, strings.TrimPrefix(ref, "@"), nil
	}

	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return refInvalid, "", errs.Validation("invalid channel url: %s", ref)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host != "youtube.com" && host != "m.youtube.com" && host != "youtu.be" {
		return refInvalid, "", errs.Validation("unsupported channel url host: %s", ref)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return refInvalid, "", errs.Validation("channel url has no path: %s", ref)
	}

	head := segments[0]
	switch {
	case strings.HasPrefix(head, "@"):
		return refHandle, strings.TrimPrefix(head, "@"), nil
	case head == "channel" && len(segments) > 1 && channelIDPattern.MatchString(segments[1]):
		return refChannelID, segments[1], nil
	case (head == "user" || head == "c") && len(segments) > 1 && segments[1] != "":
		return refUsername, segments[1], nil
	}
	return refInvalid, "", errs.Validation("unrecognized channel url: %s", ref)
}
