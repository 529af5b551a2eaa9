package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = 5 * time.Second
	defaultQueueTimeout = 5 * time.Second
	defaultPollInterval = time.Second
)

// RedisQueue keeps immediate tasks in a list, delayed ones in a sorted set
// scored by unix time, and in-flight ones in a processing list.
type RedisQueue struct {
	client          *redis.Client
	mainQueue       string
	delayedQueue    string
	processingQueue string
	retryManager    *RetryManager
	dlqHandler      DLQHandler
	config          *RedisQueueConfig
	now             func() time.Time
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

type RedisQueueConfig struct {
	// Prefix namespaces every key, e.g. travel_booking:tasks
	Prefix string

	MaxRetries   int
	BaseDelay    time.Duration
	QueueTimeout time.Duration
	PollInterval time.Duration
	EnableDLQ    bool
}

func DefaultRedisQueueConfig() *RedisQueueConfig {
	return &RedisQueueConfig{
		Prefix:       "travel_booking",
		MaxRetries:   defaultMaxRetries,
		BaseDelay:    defaultBaseDelay,
		QueueTimeout: defaultQueueTimeout,
		PollInterval: defaultPollInterval,
		EnableDLQ:    true,
	}
}

func (c *RedisQueueConfig) MainQueue() string       { return c.Prefix + ":tasks" }
func (c *RedisQueueConfig) DelayedQueue() string    { return c.Prefix + ":tasks:delayed" }
func (c *RedisQueueConfig) ProcessingQueue() string { return c.Prefix + ":tasks:processing" }
func (c *RedisQueueConfig) DLQ() string             { return c.Prefix + ":dlq" }

// NewRedisQueue builds a queue on an already connected client. A nil dlq
// handler gets the default sorted-set DLQ when EnableDLQ is set.
func NewRedisQueue(client *redis.Client, cfg *RedisQueueConfig, dlqHandler DLQHandler) *RedisQueue {
	if cfg == nil {
		cfg = DefaultRedisQueueConfig()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if dlqHandler == nil && cfg.EnableDLQ {
		dlqHandler = NewDefaultDLQHandler(client, cfg.DLQ(), cfg.MainQueue())
	}

	q := &RedisQueue{
		client:          client,
		mainQueue:       cfg.MainQueue(),
		delayedQueue:    cfg.DelayedQueue(),
		processingQueue: cfg.ProcessingQueue(),
		retryManager:    NewRetryManager(cfg.BaseDelay),
		dlqHandler:      dlqHandler,
		config:          cfg,
		now:             time.Now,
		stopChan:        make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"main":    q.mainQueue,
		"delayed": q.delayedQueue,
		"dlq":     cfg.DLQ(),
	}).Info("RedisQueue initialized")

	return q
}

// Publish sends a task to the queue
func (r *RedisQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	if err := r.prepare(task); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if task.ExecuteAt.After(r.now()) {
		err = r.client.ZAdd(ctx, r.delayedQueue, redis.Z{
			Score:  score(task.ExecuteAt),
			Member: taskData,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish delayed task: %w", err)
		}
		metrics.QueueTasks.WithLabelValues(string(task.Type), "delayed").Inc()
		return nil
	}

	if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	metrics.QueueTasks.WithLabelValues(string(task.Type), "queued").Inc()
	return nil
}

// Subscribe starts consuming tasks until ctx is done or Close is called
func (r *RedisQueue) Subscribe(ctx context.Context, handler func(*Task) error) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	// tasks left in processing by a crashed consumer go back to the queue
	if err := r.recoverProcessing(ctx); err != nil {
		logrus.WithError(err).Warn("failed to recover in-flight tasks")
	}

	r.wg.Add(3)
	go r.processDelayedTasks(ctx)
	go r.processMainQueue(ctx, handler)
	go r.monitorQueueDepth(ctx)

	logrus.Info("RedisQueue subscriber started")
	return nil
}

func (r *RedisQueue) processMainQueue(ctx context.Context, handler func(*Task) error) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
		}

		if _, err := r.processNext(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).Error("queue processing failed")
			time.Sleep(time.Second)
		}
	}
}

// processNext handles at most one task. It reports whether a task was taken.
func (r *RedisQueue) processNext(ctx context.Context, handler func(*Task) error) (bool, error) {
	taskData, err := r.client.BLMove(ctx, r.mainQueue, r.processingQueue, "RIGHT", "LEFT", r.config.QueueTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to move task to processing queue: %w", err)
	}

	defer func() {
		if err := r.client.LRem(ctx, r.processingQueue, 1, taskData).Err(); err != nil {
			logrus.WithError(err).Warn("failed to remove task from processing queue")
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		r.toDLQ(&Task{
			ID:        "corrupted_" + strconv.FormatInt(r.now().UnixNano(), 10),
			Type:      "corrupted",
			Data:      map[string]interface{}{"raw_data": taskData},
			CreatedAt: r.now(),
		}, fmt.Errorf("invalid task format: %w", err))
		return true, nil
	}

	task.Attempts++
	started := r.now()
	herr := handler(&task)
	log := logrus.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"type":     task.Type,
		"attempt":  task.Attempts,
		"duration": time.Since(started).String(),
	})

	if herr == nil {
		metrics.QueueTasks.WithLabelValues(string(task.Type), "succeeded").Inc()
		log.Debug("task completed")
		return true, nil
	}

	retry, delay := r.retryManager.ShouldRetry(&task, herr)
	if !retry {
		log.WithError(herr).Error("task failed permanently")
		r.toDLQ(&task, herr)
		return true, nil
	}

	log.WithError(herr).Warnf("task failed, retrying in %s", delay)
	metrics.QueueTasks.WithLabelValues(string(task.Type), "retried").Inc()
	task.ExecuteAt = r.now().Add(delay)
	if err := r.Publish(ctx, &task); err != nil {
		r.toDLQ(&task, fmt.Errorf("requeue failed: %w, last error: %v", err, herr))
	}
	return true, nil
}

func (r *RedisQueue) toDLQ(task *Task, err error) {
	metrics.QueueTasks.WithLabelValues(string(task.Type), "dead").Inc()
	if r.dlqHandler != nil {
		r.dlqHandler.HandleFailedTask(task, err)
	}
}

func (r *RedisQueue) processDelayedTasks(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if _, err := r.moveReadyDelayedTasks(ctx); err != nil {
				logrus.WithError(err).Error("failed to process delayed tasks")
			}
		}
	}
}

// moveReadyDelayedTasks moves due tasks from the sorted set to the main list
func (r *RedisQueue) moveReadyDelayedTasks(ctx context.Context) (int, error) {
	upTo := strconv.FormatFloat(score(r.now()), 'f', -1, 64)

	tasks, err := r.client.ZRangeByScore(ctx, r.delayedQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: upTo,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get delayed tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	// ZREM per member so a task added meanwhile with a lower score stays put
	pipe := r.client.TxPipeline()
	for _, taskData := range tasks {
		pipe.LPush(ctx, r.mainQueue, taskData)
		pipe.ZRem(ctx, r.delayedQueue, taskData)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to move delayed tasks: %w", err)
	}

	logrus.WithField("count", len(tasks)).Debug("moved delayed tasks to main queue")
	return len(tasks), nil
}

func (r *RedisQueue) recoverProcessing(ctx context.Context) error {
	for {
		_, err := r.client.LMove(ctx, r.processingQueue, r.mainQueue, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *RedisQueue) monitorQueueDepth(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			stats, err := r.GetQueueStats(ctx)
			if err != nil {
				logrus.WithError(err).Warn("failed to collect queue stats")
				continue
			}
			metrics.QueueDepth.WithLabelValues("main").Set(float64(stats.MainQueue))
			metrics.QueueDepth.WithLabelValues("delayed").Set(float64(stats.DelayedQueue))
			metrics.QueueDepth.WithLabelValues("processing").Set(float64(stats.ProcessingQueue))
			metrics.QueueDepth.WithLabelValues("dlq").Set(float64(stats.DLQ))
		}
	}
}

// prepare fills defaults before the task is serialized
func (r *RedisQueue) prepare(task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = r.config.MaxRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = r.now()
	}
	return task.Validate()
}

type QueueStats struct {
	MainQueue       int64     `json:"main_queue"`
	DelayedQueue    int64     `json:"delayed_queue"`
	ProcessingQueue int64     `json:"processing_queue"`
	DLQ             int64     `json:"dlq"`
	Timestamp       time.Time `json:"timestamp"`
}

func (r *RedisQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	mainLen := pipe.LLen(ctx, r.mainQueue)
	delayedLen := pipe.ZCard(ctx, r.delayedQueue)
	processingLen := pipe.LLen(ctx, r.processingQueue)
	dlqLen := pipe.ZCard(ctx, r.config.DLQ())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return &QueueStats{
		MainQueue:       mainLen.Val(),
		DelayedQueue:    delayedLen.Val(),
		ProcessingQueue: processingLen.Val(),
		DLQ:             dlqLen.Val(),
		Timestamp:       r.now(),
	}, nil
}

// HealthCheck performs a health check on the queue
func (r *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close stops the consumers. The client is owned by the caller.
func (r *RedisQueue) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	logrus.Info("RedisQueue closed")
	return nil
}

func score(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
