package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genslides/internal/logging"
	"genslides/internal/models"
)

// GenerateFunc performs the actual image generation for a task and returns
// the stored variant's payload for the completion event.
type GenerateFunc func(ctx context.Context, task *models.GenerationTask) (models.ImagePayload, error)

// CostFunc returns the current cost summary for a project, broadcast after
// every terminal task state.
type CostFunc func(slug string) (models.CostUpdatedData, error)

// taskSlot is the per-slide generation slot. At most one task is active per
// slide at a time; a forced request arriving while one runs is coalesced
// into a single queued task that starts when the active one finishes.
type taskSlot struct {
	active *models.GenerationTask
	queued *models.GenerationTask
}

// TaskRegistry owns the lifecycle of asynchronous generation tasks. Accepted
// tasks always run to a terminal state; there is no cancellation.
type TaskRegistry struct {
	mu    sync.Mutex
	slots map[string]map[string]*taskSlot // slug → sid → slot

	broadcaster *Broadcaster
	generate    GenerateFunc
	cost        CostFunc
	timeout     time.Duration
	engineName  func(slug string) string

	wg sync.WaitGroup
}

// NewTaskRegistry creates a task registry. engineName resolves the project's
// current engine for metrics labels.
func NewTaskRegistry(broadcaster *Broadcaster, generate GenerateFunc, cost CostFunc, timeout time.Duration, engineName func(slug string) string) *TaskRegistry {
	return &TaskRegistry{
		slots:       make(map[string]map[string]*taskSlot),
		broadcaster: broadcaster,
		generate:    generate,
		cost:        cost,
		timeout:     timeout,
		engineName:  engineName,
	}
}

// Request asks for a generation task on the given slide. Without force it
// fails with ErrAlreadyGenerating when a task is already running for the
// slide. With force it queues one follow-up task behind the running one;
// repeated forced requests collapse into that single queued task.
func (tr *TaskRegistry) Request(slug, sid string, force bool) (*models.GenerationTask, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.slots[slug] == nil {
		tr.slots[slug] = make(map[string]*taskSlot)
	}

	slot := tr.slots[slug][sid]
	if slot != nil && slot.active != nil {
		if !force {
			if m := GetMetrics(); m != nil {
				m.GenerationsRejected.Inc()
			}
			return nil, ErrAlreadyGenerating
		}
		if slot.queued != nil {
			// Coalesce: the already-queued task covers this request too
			return slot.queued, nil
		}
		task := tr.newTask(slug, sid, force)
		slot.queued = task
		return task, nil
	}

	task := tr.newTask(slug, sid, force)
	tr.slots[slug][sid] = &taskSlot{active: task}
	tr.start(task)
	return task, nil
}

// ActiveSids returns the slide ids with a running task in the project,
// sorted for deterministic sync frames.
func (tr *TaskRegistry) ActiveSids(slug string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	sids := make([]string, 0, len(tr.slots[slug]))
	for sid, slot := range tr.slots[slug] {
		if slot.active != nil {
			sids = append(sids, sid)
		}
	}
	sort.Strings(sids)
	return sids
}

// IsGenerating reports whether the slide currently has a running task
func (tr *TaskRegistry) IsGenerating(slug, sid string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	slot := tr.slots[slug][sid]
	return slot != nil && slot.active != nil
}

// Wait blocks until all running tasks reach a terminal state. Used for
// graceful shutdown and tests.
func (tr *TaskRegistry) Wait() {
	tr.wg.Wait()
}

func (tr *TaskRegistry) newTask(slug, sid string, force bool) *models.GenerationTask {
	return &models.GenerationTask{
		ID:        uuid.New().String(),
		Slug:      slug,
		Sid:       sid,
		State:     models.TaskPending,
		Force:     force,
		CreatedAt: time.Now().UTC(),
	}
}

// start launches the task goroutine. Caller holds tr.mu.
func (tr *TaskRegistry) start(task *models.GenerationTask) {
	tr.wg.Add(1)
	go tr.run(task)
}

func (tr *TaskRegistry) run(task *models.GenerationTask) {
	defer tr.wg.Done()

	logger := logging.WithTask(task.ID, task.Slug, task.Sid)
	engine := tr.engineName(task.Slug)

	task.State = models.TaskProcessing
	tr.broadcaster.Broadcast(task.Slug, models.Envelope{
		Type: models.EventGenerationStarted,
		Data: models.GenerationStartedData{TaskID: task.ID, Sid: task.Sid},
	})
	if m := GetMetrics(); m != nil {
		m.GenerationsStarted.WithLabelValues(engine, "slide").Inc()
	}
	logger.Info("generation started", "engine", engine, "force", task.Force)

	ctx, cancel := context.WithTimeout(context.Background(), tr.timeout)
	defer cancel()

	started := time.Now()
	image, err := tr.generate(ctx, task)
	elapsed := time.Since(started)

	if err != nil {
		task.State = models.TaskFailed
		task.Error = err.Error()
		tr.broadcaster.Broadcast(task.Slug, models.Envelope{
			Type: models.EventGenerationFailed,
			Data: models.GenerationFailedData{TaskID: task.ID, Sid: task.Sid, Error: err.Error()},
		})
		logger.Error("generation failed", "error", err, "duration", elapsed)
	} else {
		task.State = models.TaskCompleted
		tr.broadcaster.Broadcast(task.Slug, models.Envelope{
			Type: models.EventGenerationCompleted,
			Data: models.GenerationCompletedData{TaskID: task.ID, Sid: task.Sid, Image: image},
		})
		logger.Info("generation completed", "hash", image.Hash, "duration", elapsed)
	}

	if m := GetMetrics(); m != nil {
		m.GenerationsFinished.WithLabelValues(engine, string(task.State)).Inc()
		m.GenerationLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
	}

	// Cost is broadcast after every terminal state so clients reconcile
	// even when a failed attempt was billed upstream.
	if cost, costErr := tr.cost(task.Slug); costErr == nil {
		tr.broadcaster.Broadcast(task.Slug, models.Envelope{
			Type: models.EventCostUpdated,
			Data: cost,
		})
	}

	tr.finish(task)
}

// finish releases the slide's slot, promoting the queued task if present
func (tr *TaskRegistry) finish(task *models.GenerationTask) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	slot := tr.slots[task.Slug][task.Sid]
	if slot == nil || slot.active != task {
		return
	}

	if slot.queued != nil {
		slot.active = slot.queued
		slot.queued = nil
		tr.start(slot.active)
		return
	}

	delete(tr.slots[task.Slug], task.Sid)
	if len(tr.slots[task.Slug]) == 0 {
		delete(tr.slots, task.Slug)
	}
}
