/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/leadership"
)

// LeaderAwareRunner wraps a runner and only runs it while this instance
// holds the leadership lease.
type LeaderAwareRunner struct {
	runner   *Runner
	election *leadership.Election
	logger   zerolog.Logger

	mu         sync.Mutex
	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewLeaderAware creates a leader-aware runner wrapper
func NewLeaderAware(runner *Runner, election *leadership.Election, logger zerolog.Logger) *LeaderAwareRunner {
	return &LeaderAwareRunner{
		runner:   runner,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the campaign and starts or stops the runner as leadership changes.
func (l *LeaderAwareRunner) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	l.logger.Info().Msg("starting leader-aware scheduler")
	if err := l.election.Start(ctx); err != nil {
		return err
	}
	go l.monitorLeadership(ctx)
	return nil
}

// Stop halts the runner and releases leadership.
func (l *LeaderAwareRunner) Stop() error {
	l.logger.Info().Msg("stopping leader-aware scheduler")
	l.stopRunner()
	return l.election.Stop()
}

// Running reports whether the runner is active on this instance.
func (l *LeaderAwareRunner) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelFunc != nil
}

// IsLeader returns whether this instance is the leader
func (l *LeaderAwareRunner) IsLeader() bool {
	return l.election.IsLeader()
}

func (l *LeaderAwareRunner) monitorLeadership(ctx context.Context) {
	leaderCh := l.election.LeaderCh()
	if l.election.IsLeader() {
		l.startRunner()
	}

	for {
		select {
		case <-ctx.Done():
			l.stopRunner()
			return
		case isLeader := <-leaderCh:
			if isLeader {
				l.logger.Info().Msg("became leader, starting scheduler")
				l.startRunner()
			} else {
				l.logger.Warn().Msg("lost leadership, stopping scheduler")
				l.stopRunner()
			}
		}
	}
}

func (l *LeaderAwareRunner) startRunner() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelFunc != nil {
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	done := make(chan struct{})
	l.cancelFunc = cancel
	l.done = done

	go func() {
		defer close(done)
		l.logger.Info().Msg("scheduler started")
		if err := l.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("scheduler error")
		}
		l.logger.Info().Msg("scheduler stopped")
	}()
}

func (l *LeaderAwareRunner) stopRunner() {
	l.mu.Lock()
	cancel, done := l.cancelFunc, l.done
	l.cancelFunc, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
