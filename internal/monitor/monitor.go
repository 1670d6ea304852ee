// Package monitor periodically samples connection pool statistics.
package monitor

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/routedb/internal/dbrouter"
)

// DefaultSchedule samples every 30 seconds
const DefaultSchedule = "@every 30s"

// StatsSource provides per-target pool statistics
type StatsSource interface {
	Stats() map[dbrouter.Target]sql.DBStats
}

// Recorder receives sampled statistics
type Recorder interface {
	ObservePool(target dbrouter.Target, stats sql.DBStats)
}

// Manager schedules pool sampling
type Manager struct {
	source      StatsSource
	recorder    Recorder
	schedule    string
	cron        *cron.Cron
	cronEntryID cron.EntryID
	mu          sync.RWMutex
	running     bool

	// sampleMu guards lastSample; Stop holds mu while a sample drains.
	sampleMu   sync.Mutex
	lastSample time.Time
}

// NewManager creates a pool monitor. An empty schedule uses DefaultSchedule.
func NewManager(source StatsSource, recorder Recorder, schedule string) *Manager {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Manager{
		source:   source,
		recorder: recorder,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start starts the scheduler
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	id, err := m.cron.AddFunc(m.schedule, m.SampleNow)
	if err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", m.schedule, err)
	}
	m.cronEntryID = id

	m.cron.Start()
	m.running = true

	log.Info().Str("schedule", m.schedule).Msg("Pool monitor started")
	return nil
}

// Stop stops the scheduler and waits for a running sample to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	ctx := m.cron.Stop()
	<-ctx.Done()

	m.cron.Remove(m.cronEntryID)
	m.cronEntryID = 0
	m.running = false

	log.Info().Msg("Pool monitor stopped")
}

// IsRunning returns whether the scheduler is running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// NextRun returns the next scheduled sample, zero when stopped
func (m *Manager) NextRun() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cronEntryID == 0 {
		return time.Time{}
	}
	return m.cron.Entry(m.cronEntryID).Next
}

// LastSample returns when the pools were last sampled
func (m *Manager) LastSample() time.Time {
	m.sampleMu.Lock()
	defer m.sampleMu.Unlock()
	return m.lastSample
}

// SampleNow records the current statistics of every pool
func (m *Manager) SampleNow() {
	for target, stats := range m.source.Stats() {
		if m.recorder != nil {
			m.recorder.ObservePool(target, stats)
		}

		log.Debug().
			Str("target", target.String()).
			Int("open", stats.OpenConnections).
			Int("in_use", stats.InUse).
			Int("idle", stats.Idle).
			Int64("wait_count", stats.WaitCount).
			Dur("wait_duration", stats.WaitDuration).
			Msg("Pool stats")
	}

	m.sampleMu.Lock()
	m.lastSample = time.Now()
	m.sampleMu.Unlock()
}
