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

// Package store persists projects, jobs, and user secrets. This file is the
// typed repository the rest of the application talks to. It also owns the
// per-project write locks: any read-modify-write of a project document must
// run inside WithProjectLock so concurrent jobs against the same project
// serialize instead of clobbering each other.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Store is the typed repository over the document tables. Safe for
// concurrent use.
type Store struct {
	db    *gorm.DB
	locks sync.Map // project id -> *sync.Mutex
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithProjectLock runs fn while holding the write lock for the project.
// Locks are process-local; the service runs as a single writer per project.
func (s *Store) WithProjectLock(projectID string, fn func() error) error {
	lock, _ := s.locks.LoadOrStore(projectID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// SaveProject upserts the whole project document.
func (s *Store) SaveProject(ctx context.Context, project *model.Project) error {
	project.UpdatedAt = time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = project.UpdatedAt
	}
	doc, err := json.Marshal(project)
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "failed to encode project %q", project.ID)
	}
	record := &ProjectRecord{
		ID:        project.ID,
		OwnerID:   project.OwnerID,
		Name:      project.Name,
		Status:    string(project.Status),
		Doc:       datatypes.JSON(doc),
		CreatedAt: project.CreatedAt,
		UpdatedAt: project.UpdatedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	return errs.Wrap(err, errs.KindInternal, "failed to save project %q", project.ID)
}

// GetProject loads one project document.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var record ProjectRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "project %q not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to load project %q", id)
	}
	var project model.Project
	if err := json.Unmarshal(record.Doc, &project); err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "corrupt project document %q", id)
	}
	return &project, nil
}

// ListProjects returns all projects visible to the user, newest first. A
// project is visible to its owner and to anyone on its allowed list; the
// allowed list lives inside the document, so the coarse query filters by
// owner and the document pass filters the rest.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*model.Project, error) {
	var records []ProjectRecord
	err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&records).Error
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to list projects")
	}
	projects := make([]*model.Project, 0, len(records))
	for _, record := range records {
		var project model.Project
		if err := json.Unmarshal(record.Doc, &project); err != nil {
			return nil, errs.Wrap(err, errs.KindInternal, "corrupt project document %q", record.ID)
		}
		if project.OwnerID == userID || containsUser(project.AllowedUsers, userID) {
			projects = append(projects, &project)
		}
	}
	return projects, nil
}

// DeleteProject removes the project document and every job that references
// it.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&ProjectRecord{}, "id = ?", id)
		if result.Error != nil {
			return errs.Wrap(result.Error, errs.KindInternal, "failed to delete project %q", id)
		}
		if result.RowsAffected == 0 {
			return errs.New(errs.KindNotFound, "project %q not found", id)
		}
		err := tx.Delete(&JobRecord{}, "project_id = ?", id).Error
		return errs.Wrap(err, errs.KindInternal, "failed to delete jobs for project %q", id)
	})
}

// CreateJob persists a new job row.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	record, err := jobToRecord(job)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(record).Error
	return errs.Wrap(err, errs.KindInternal, "failed to create job %q", job.ID)
}

// UpdateJob overwrites the job row with the current state.
func (s *Store) UpdateJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()
	record, err := jobToRecord(job)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":      record.State,
			"progress":   record.Progress,
			"step":       record.Step,
			"result_ref": record.ResultRef,
			"error":      record.Error,
			"error_log":  record.ErrorLog,
			"updated_at": record.UpdatedAt,
		}).Error
	return errs.Wrap(err, errs.KindInternal, "failed to update job %q", job.ID)
}

// GetJob loads one job.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var record JobRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "job %q not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to load job %q", id)
	}
	return recordToJob(&record)
}

// ListJobs returns the jobs for a project, newest first.
func (s *Store) ListJobs(ctx context.Context, projectID string) ([]*model.Job, error) {
	var records []JobRecord
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to list jobs for project %q", projectID)
	}
	jobs := make([]*model.Job, 0, len(records))
	for i := range records {
		job, err := recordToJob(&records[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpsertSecret stores or replaces the credential for (user, service).
func (s *Store) UpsertSecret(ctx context.Context, secret *model.UserSecret) error {
	record := &UserSecretRecord{
		UserID:    secret.UserID,
		Service:   secret.Service,
		Key:       secret.Key,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{"key", "updated_at"}),
	}).Create(record).Error
	return errs.Wrap(err, errs.KindInternal, "failed to save secret for service %q", secret.Service)
}

// GetSecret loads the credential for (user, service).
func (s *Store) GetSecret(ctx context.Context, userID, service string) (*model.UserSecret, error) {
	var record UserSecretRecord
	err := s.db.WithContext(ctx).First(&record, "user_id = ? AND service = ?", userID, service).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "no secret for service %q", service)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to load secret for service %q", service)
	}
	return &model.UserSecret{UserID: record.UserID, Service: record.Service, Key: record.Key}, nil
}

// ListSecrets returns all of the user's credentials.
func (s *Store) ListSecrets(ctx context.Context, userID string) ([]*model.UserSecret, error) {
	var records []UserSecretRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&records).Error
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to list secrets")
	}
	secrets := make([]*model.UserSecret, 0, len(records))
	for _, record := range records {
		secrets = append(secrets, &model.UserSecret{
			UserID:  record.UserID,
			Service: record.Service,
			Key:     record.Key,
		})
	}
	return secrets, nil
}

// DeleteSecret removes the credential for (user, service).
func (s *Store) DeleteSecret(ctx context.Context, userID, service string) error {
	result := s.db.WithContext(ctx).Delete(&UserSecretRecord{}, "user_id = ? AND service = ?", userID, service)
	if result.Error != nil {
		return errs.Wrap(result.Error, errs.KindInternal, "failed to delete secret for service %q", service)
	}
	if result.RowsAffected == 0 {
		return errs.New(errs.KindNotFound, "no secret for service %q", service)
	}
	return nil
}

func jobToRecord(job *model.Job) (*JobRecord, error) {
	errorLog, err := json.Marshal(job.ErrorLog)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to encode job error log")
	}
	return &JobRecord{
		ID:        job.ID,
		ProjectID: job.ProjectID,
		UserID:    job.UserID,
		Kind:      string(job.Kind),
		State:     string(job.State),
		Progress:  job.Progress,
		Step:      job.Step,
		ResultRef: job.ResultRef,
		Error:     job.Error,
		ErrorLog:  datatypes.JSON(errorLog),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

func recordToJob(record *JobRecord) (*model.Job, error) {
	job := &model.Job{
		ID:        record.ID,
		ProjectID: record.ProjectID,
		UserID:    record.UserID,
		Kind:      model.JobKind(record.Kind),
		State:     model.JobState(record.State),
		Progress:  record.Progress,
		Step:      record.Step,
		ResultRef: record.ResultRef,
		Error:     record.Error,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if len(record.ErrorLog) > 0 {
		if err := json.Unmarshal(record.ErrorLog, &job.ErrorLog); err != nil {
			return nil, errs.Wrap(err, errs.KindInternal, "corrupt error log on job %q", record.ID)
		}
	}
	return job, nil
}

func containsUser(users []string, userID string) bool {
	for _, u := range users {
		if u == userID {
			return true
		}
	}
	return false
}
