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

package jobs

import (
	"os"
	"strings"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// UserContext is the immutable credential snapshot a job runs under. It is
// taken once at job start; rotating a secret never affects a running job.
type UserContext struct {
	UserID  string
	secrets map[string]string
}

// NewUserContext snapshots the user's stored secrets, falling back to the
// process environment for services the user has not configured.
func NewUserContext(userID string, stored []*model.UserSecret) *UserContext {
	secrets := map[string]string{
		model.ServiceLLM:        os.Getenv(cloud.EnvLLMAPIKey),
		model.ServiceImageModel: os.Getenv(cloud.EnvImageModelAPIKey),
		model.ServiceVoice:      os.Getenv(cloud.EnvVoiceAPIKey),
		model.ServiceSearch:     os.Getenv(cloud.EnvSearchAPIKeys),
	}
	for _, secret := range stored {
		if secret.Key != "" {
			secrets[secret.Service] = secret.Key
		}
	}
	return &UserContext{UserID: userID, secrets: secrets}
}

// Secret returns the key for a service, or "" when none is configured.
func (u *UserContext) Secret(service string) string {
	if u == nil {
		return ""
	}
	return u.secrets[service]
}

// RequireSecret returns the key for a service or a MissingSecret error.
func (u *UserContext) RequireSecret(service string) (string, error) {
	key := u.Secret(service)
	if strings.TrimSpace(key) == "" {
		return "", errs.New(errs.KindMissingSecret, "no %s credential configured for user %s", service, u.UserID)
	}
	return key, nil
}

// SearchKeys splits the search credential into its key pool form.
func (u *UserContext) SearchKeys() []string {
	raw := u.Secret(model.ServiceSearch)
	if raw == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
