package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"fedfollow/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultPollInterval is how often scheduled retries are checked for due entries
	DefaultPollInterval = time.Second
)

// EventHandler processes a single delivery event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event queue.DeliveryEvent) error
}

// Manager runs worker goroutines that drain the delivery stream.
type Manager struct {
	consumer    queue.Consumer
	handler     EventHandler
	workerCount int
	batchSize   int64
	blockTime   time.Duration

	scheduler    queue.Scheduler
	pollInterval time.Duration

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int           // Number of worker goroutines
	BatchSize    int64         // Messages per read
	BlockTimeout time.Duration // Block time for XREADGROUP

	Scheduler    queue.Scheduler // Optional; promotes due retries back onto the stream
	PollInterval time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler EventHandler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,

		scheduler:    cfg.Scheduler,
		pollInterval: cfg.PollInterval,
	}
}

// Start begins the worker goroutines.
// Call Stop() to gracefully shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamDelivery, queue.ConsumerGroupDelivery); err != nil {
		m.cancel()
		return err
	}

	log.Printf("[Manager] Starting %d workers for stream=%s group=%s",
		m.workerCount, queue.StreamDelivery, queue.ConsumerGroupDelivery)

	m.group = new(errgroup.Group)
	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		consumerName := consumerNameForWorker(workerID)
		m.group.Go(func() error {
			m.runWorker(workerID, consumerName)
			return nil
		})
	}

	if m.scheduler != nil {
		m.group.Go(func() error {
			m.runScheduler()
			return nil
		})
	}

	log.Printf("[Manager] All %d workers started", m.workerCount)
	return nil
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	log.Printf("[Manager] Stopping workers...")
	m.cancel()
	if m.group != nil {
		_ = m.group.Wait()
	}
	log.Printf("[Manager] All workers stopped")
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(workerID int, consumerName string) {
	log.Printf("[Worker-%d] Started (consumer=%s)", workerID, consumerName)

	// Deliveries read but never acked by a previous run come first.
	m.processPending(workerID, consumerName)

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Worker-%d] Shutting down", workerID)
			return
		default:
			m.processMessages(workerID, consumerName)
		}
	}
}

// runScheduler moves due retries from the schedule onto the stream until shutdown.
func (m *Manager) runScheduler() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Scheduler] Shutting down")
			return
		case <-ticker.C:
			moved, err := m.scheduler.PromoteDue(m.ctx, time.Now(), m.batchSize)
			if err != nil {
				if m.ctx.Err() == nil {
					log.Printf("[Scheduler] Promote error: %v", err)
				}
				continue
			}
			if moved > 0 {
				log.Printf("[Scheduler] Promoted %d due deliveries to stream=%s", moved, queue.StreamDelivery)
			}
		}
	}
}

// processPending handles messages that were delivered but not acknowledged.
func (m *Manager) processPending(workerID int, consumerName string) {
	for {
		messages, err := m.consumer.ReadPending(m.ctx, queue.StreamDelivery, queue.ConsumerGroupDelivery, consumerName, m.batchSize)
		if err != nil {
			log.Printf("[Worker-%d] Error reading pending: %v", workerID, err)
			return
		}
		if len(messages) == 0 {
			return
		}

		log.Printf("[Worker-%d] Processing %d pending messages", workerID, len(messages))
		m.handleMessages(workerID, messages)
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(workerID int, consumerName string) {
	messages, err := m.consumer.Read(
		m.ctx,
		queue.StreamDelivery,
		queue.ConsumerGroupDelivery,
		consumerName,
		m.batchSize,
		m.blockTime,
	)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		log.Printf("[Worker-%d] Error reading: %v", workerID, err)
		time.Sleep(time.Second) // Back off on error
		return
	}

	if len(messages) == 0 {
		return // Timeout, no messages
	}

	m.handleMessages(workerID, messages)
}

// handleMessages processes a batch of messages and acknowledges them.
// Retries travel as new stream entries, so every message is acked.
func (m *Manager) handleMessages(workerID int, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(m.ctx, msg.Event); err != nil {
			log.Printf("[Worker-%d] Handler error msgID=%s activity=%s: %v", workerID, msg.ID, msg.Event.ActivityID, err)
		}

		ackCtx := context.WithoutCancel(m.ctx)
		if err := m.consumer.Ack(ackCtx, queue.StreamDelivery, queue.ConsumerGroupDelivery, msg.ID); err != nil {
			log.Printf("[Worker-%d] ACK error msgID=%s: %v", workerID, msg.ID, err)
		}
	}
}

func consumerNameForWorker(workerID int) string {
	return fmt.Sprintf("worker-%d", workerID)
}
