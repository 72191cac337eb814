package jobqueue

import (
	"sync"
	"time"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	metrics "github.com/binsaleem99/kwapps-sub001/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	bonusTicker        *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		// Get worker count from settings, fallback to 5 if not available
		workerCount := 5
		if settings := getAppSettings(); settings != nil {
			workerCount = settings.GetJobQueueWorkerCount()
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Start counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker(stopCh)

	// Daily bonus trigger; the sweep itself is guarded per calendar day, so
	// a short interval only costs a Redis SETNX.
	bonusInterval := 60 * time.Minute
	if settings := getAppSettings(); settings != nil {
		if v := settings.GetBonusSweepIntervalMinutes(); v > 0 {
			bonusInterval = time.Duration(v) * time.Minute
		}
	}
	m.bonusTicker = time.NewTicker(bonusInterval)
	m.wg.Add(1)
	go m.bonusWorker(stopCh)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.bonusTicker != nil {
		m.bonusTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes in-memory counters from Redis to DB
func (m *Manager) counterFlushWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := m.flushCountersOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// bonusWorker periodically enqueues the daily bonus sweep job.
func (m *Manager) bonusWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Bonus worker stopping")
			return
		case <-m.bonusTicker.C:
			if err := m.enqueueDailyBonusSweep(); err != nil {
				log.Errorf("[JobQueue Manager] Bonus sweep enqueue error: %v", err)
			}
		}
	}
}

func (m *Manager) flushCountersOnce() error {
	// Flush Redis -> DB (batched upsert)
	return metrics.FlushAll()
}

func (m *Manager) enqueueDailyBonusSweep() error {
	payload := DailyBonusJobPayload{BonusDate: time.Now().UTC().Format("2006-01-02")}
	_, err := m.queue.EnqueueJob(JobTypeDailyBonus, payload.ToMap())
	return err
}

// RunDailyBonusSweepNow exposes a manual trigger for the bonus sweep (admin use).
func (m *Manager) RunDailyBonusSweepNow() error {
	return m.enqueueDailyBonusSweep()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// getAppSettings safely returns the current app settings
func getAppSettings() *models.AppSettings {
	return models.GetAppSettings()
}
