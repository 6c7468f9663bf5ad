/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/friendsincode/slotkeeper/internal/booking"
	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/config"
	"github.com/friendsincode/slotkeeper/internal/db"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/notifications"
	"github.com/friendsincode/slotkeeper/internal/reminders"
	"github.com/friendsincode/slotkeeper/internal/server"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/sweeper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		database, err := initDatabase()
		if err != nil {
			return err
		}
		defer db.Close(database)
		logger.Info().Str("backend", string(cfg.DBBackend)).Msg("database migrated")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Complete bookings whose slot has ended, once",
	RunE:  runSweep,
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Queue reminders for appointments starting within 30 minutes, once",
	Long: `Scan for confirmed bookings starting within the reminder window and queue
one reminder email per booking on the configured queue backend.

With the memory backend there is no separate dispatcher to pick the jobs up,
so they are delivered before the command exits.`,
	RunE: runRemind,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(remindCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	s := sweeper.New(store.NewGorm(database), clock.System{}, events.NewBus(), logger)
	res, err := s.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "completed %d bookings (%d failed)\n", res.UpdatedCount, res.FailedCount)
	return nil
}

func runRemind(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	var client *redis.Client
	if cfg.QueueBackend == config.QueueRedis {
		client, err = server.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
	}
	var universal redis.UniversalClient
	if client != nil {
		universal = client
	}

	queue, err := server.OpenQueue(cfg, universal)
	if err != nil {
		return fmt.Errorf("open notification queue: %w", err)
	}
	defer queue.Close()

	repo := store.NewGorm(database)
	scanner := reminders.New(repo, queue, clock.System{}, cfg.Location(), logger)

	mem, ok := queue.(*notifications.MemoryQueue)
	if !ok {
		queued, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d reminders on %s\n", queued, cfg.QueueBackend)
		return nil
	}

	// No dispatcher runs outside serve, so deliver inline while scanning.
	bookings := booking.NewService(repo, clock.System{}, events.NewBus(), logger)
	dispatcher := notifications.NewDispatcher(mem, server.NewTransport(cfg, logger), bookings,
		notifications.NewGormDeliveryLog(database), server.DispatcherConfig(cfg), logger)

	scanCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	failed := 0
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		deliver := func(msg *notifications.Message) {
			if err := dispatcher.Process(ctx, msg.Job); err != nil {
				failed++
			}
		}
		for {
			msg, err := mem.Dequeue(scanCtx)
			if err != nil {
				break
			}
			deliver(msg)
		}
		for mem.Len() > 0 && ctx.Err() == nil {
			msg, err := mem.Dequeue(ctx)
			if err != nil {
				return
			}
			deliver(msg)
		}
	}()

	queued, err := scanner.Scan(ctx)
	stopDrain()
	<-drained
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "delivered %d reminders (%d failed)\n", queued-failed, failed)
	return nil
}
