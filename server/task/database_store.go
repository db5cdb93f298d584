// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	floodguard "github.com/heyubaidullah/floodguard-sub000"
)

// DatabaseTaskStore is a database implementation of TaskStore using GORM.
// It accepts any dialector the caller has opened; the store itself only
// depends on the gorm API.
type DatabaseTaskStore struct {
	db          *gorm.DB
	tableName   string
	createTable bool
}

var _ TaskStore = (*DatabaseTaskStore)(nil)

// DatabaseTaskStoreConfig holds configuration for DatabaseTaskStore.
type DatabaseTaskStoreConfig struct {
	DB          *gorm.DB
	TableName   string // Optional, defaults to "tasks"
	CreateTable bool   // Whether to auto-migrate the table on Initialize
}

// NewDatabaseTaskStore creates a new DatabaseTaskStore.
func NewDatabaseTaskStore(config DatabaseTaskStoreConfig) (*DatabaseTaskStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}

	tableName := config.TableName
	if tableName == "" {
		tableName = "tasks"
	}

	return &DatabaseTaskStore{
		db:          config.DB,
		tableName:   tableName,
		createTable: config.CreateTable,
	}, nil
}

// Save persists a task to the database. The whole row, including the status
// column and the transition history document, is written in one
// transaction so the two can never disagree.
func (s *DatabaseTaskStore) Save(ctx context.Context, task *floodguard.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	model, err := NewTaskModelFromTask(task)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.scoped(tx).Save(model).Error
	})
	if err != nil {
		return NewTaskStoreError("save", task.ID, err)
	}

	return nil
}

// Get retrieves a task by its ID from the database.
func (s *DatabaseTaskStore) Get(ctx context.Context, taskID string) (*floodguard.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model TaskModel
	if err := s.scoped(s.db.WithContext(ctx)).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, floodguard.NewTaskNotFoundError(taskID)
		}
		return nil, NewTaskStoreError("get", taskID, err)
	}

	task, err := model.ToTask()
	if err != nil {
		return nil, NewTaskStoreError("get", taskID, err)
	}
	return task, nil
}

// Delete removes a task from the database.
func (s *DatabaseTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	result := s.scoped(s.db.WithContext(ctx)).Where("id = ?", taskID).Delete(&TaskModel{})
	if result.Error != nil {
		return NewTaskStoreError("delete", taskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return floodguard.NewTaskNotFoundError(taskID)
	}

	return nil
}

// List retrieves tasks with optional filtering by context ID.
func (s *DatabaseTaskStore) List(ctx context.Context, contextID string, limit, offset int) ([]*floodguard.Task, error) {
	db := s.scoped(s.db.WithContext(ctx))

	if contextID != "" {
		db = db.Where("context_id = ?", contextID)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var models []TaskModel
	if err := db.Order("created_at").Find(&models).Error; err != nil {
		return nil, NewTaskStoreError("list", "", err)
	}

	tasks := make([]*floodguard.Task, len(models))
	for i := range models {
		task, err := models[i].ToTask()
		if err != nil {
			return nil, NewTaskStoreError("list", models[i].ID, err)
		}
		tasks[i] = task
	}
	return tasks, nil
}

// Count returns the total number of tasks in the database.
func (s *DatabaseTaskStore) Count(ctx context.Context, contextID string) (int64, error) {
	db := s.scoped(s.db.WithContext(ctx)).Model(&TaskModel{})
	if contextID != "" {
		db = db.Where("context_id = ?", contextID)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, NewTaskStoreError("count", "", err)
	}
	return count, nil
}

// Initialize prepares the database for use, auto-migrating the task table
// when the store was configured to create it.
func (s *DatabaseTaskStore) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}

	if err := s.scoped(s.db.WithContext(ctx)).AutoMigrate(&TaskModel{}); err != nil {
		return NewTaskStoreError("initialize", "", err)
	}
	return nil
}

// Close cleanly shuts down the database connection.
func (s *DatabaseTaskStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return NewTaskStoreError("close", "", err)
	}
	return sqlDB.Close()
}

func (s *DatabaseTaskStore) scoped(db *gorm.DB) *gorm.DB {
	if s.tableName != "tasks" {
		return db.Table(s.tableName)
	}
	return db
}
