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

// Package store persists projects, jobs, and user secrets. Projects are kept
// as whole documents: the aggregate is serialized to a JSON column and a few
// hot fields (owner, status) are mirrored into real columns for filtering.
// That matches how the pipeline mutates projects, which is always as one
// aggregate under one lock.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectRecord is the table row backing one project document.
type ProjectRecord struct {
	ID        string         `gorm:"primaryKey;size:64"`
	OwnerID   string         `gorm:"index;size:64"`
	Name      string         `gorm:"size:256"`
	Status    string         `gorm:"size:32"`
	Doc       datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProjectRecord) TableName() string { return "projects" }

// JobRecord is one background job row. The error log is small and append
// only, so it lives in a JSON column rather than a side table.
type JobRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	ProjectID string `gorm:"index;size:64"`
	UserID    string `gorm:"index;size:64"`
	Kind      string `gorm:"size:64"`
	State     string `gorm:"size:32"`
	Progress  int
	Step      string `gorm:"size:256"`
	ResultRef string `gorm:"size:256"`
	Error     string
	ErrorLog  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (JobRecord) TableName() string { return "jobs" }

// UserSecretRecord stores one credential per (user, service).
type UserSecretRecord struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Service   string `gorm:"primaryKey;size:32"`
	Key       string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserSecretRecord) TableName() string { return "user_secrets" }
