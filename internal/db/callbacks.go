/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

const _startTime = "telemetry:start_time"

// RegisterCallbacks wraps every gorm CRUD processor with timing and error
// metrics labelled by operation and table.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		operation string
		before    func(name string, fn func(*gorm.DB)) error
		after     func(name string, fn func(*gorm.DB)) error
	}{
		{
			operation: "query",
			before:    func(n string, fn func(*gorm.DB)) error { return cb.Query().Before("gorm:query").Register(n, fn) },
			after:     func(n string, fn func(*gorm.DB)) error { return cb.Query().After("gorm:query").Register(n, fn) },
		},
		{
			operation: "create",
			before:    func(n string, fn func(*gorm.DB)) error { return cb.Create().Before("gorm:create").Register(n, fn) },
			after:     func(n string, fn func(*gorm.DB)) error { return cb.Create().After("gorm:create").Register(n, fn) },
		},
		{
			operation: "update",
			before:    func(n string, fn func(*gorm.DB)) error { return cb.Update().Before("gorm:update").Register(n, fn) },
			after:     func(n string, fn func(*gorm.DB)) error { return cb.Update().After("gorm:update").Register(n, fn) },
		},
		{
			operation: "delete",
			before:    func(n string, fn func(*gorm.DB)) error { return cb.Delete().Before("gorm:delete").Register(n, fn) },
			after:     func(n string, fn func(*gorm.DB)) error { return cb.Delete().After("gorm:delete").Register(n, fn) },
		},
	}
	for _, step := range steps {
		if err := step.before("telemetry:before_"+step.operation, markStart); err != nil {
			return fmt.Errorf("register before %s: %w", step.operation, err)
		}
		if err := step.after("telemetry:after_"+step.operation, observe(step.operation)); err != nil {
			return fmt.Errorf("register after %s: %w", step.operation, err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		value, ok := db.InstanceGet(_startTime)
		if !ok {
			return
		}
		started, ok := value.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			reason := "query_error"
			if errors.Is(db.Error, gorm.ErrDuplicatedKey) {
				reason = "duplicate_key"
			}
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, reason).Inc()
		}
	}
}

// UpdateConnectionMetrics publishes connection pool gauges. The periodic
// runner calls it alongside the booking jobs.
func UpdateConnectionMetrics(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		telemetry.DatabaseErrorsTotal.WithLabelValues("ping", "unreachable").Inc()
		return err
	}

	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsActive.Set(float64(stats.InUse))
	telemetry.DatabaseConnectionsIdle.Set(float64(stats.Idle))
	telemetry.DatabaseConnectionWaits.Set(float64(stats.WaitCount))
	return nil
}
