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

// Package store persists projects, jobs, and user secrets. This file opens
// the database connection and runs migrations. Production runs on Postgres;
// an empty or file/memory DSN selects SQLite, which the test suite uses.
package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/creatorscope/channelintel/internal/cloud"
)

// Open connects to the configured database and migrates the schema.
//
// Inputs:
//   - cfg: the database configuration. A DSN starting with "file:" or equal
//     to ":memory:" opens SQLite; anything else opens Postgres. An empty DSN
//     opens an in-memory SQLite database.
//
// Outputs:
//   - *gorm.DB: the migrated connection handle.
//   - error: connection or migration failure.
func Open(cfg cloud.Database) (*gorm.DB, error) {
	dialector := dialectorFor(cfg.DSN)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&ProjectRecord{}, &JobRecord{}, &UserSecretRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	switch {
	case dsn == "" || dsn == ":memory:":
		return sqlite.Open("file::memory:?cache=shared")
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}
