package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/events"
)

// Transport is the backend surface the controller drives. Satisfied by
// *client.Client.
type Transport interface {
	Upload(ctx context.Context, file client.FileInput, meta client.Metadata, progress client.ProgressFunc) (*client.SubmitResult, error)
	BatchUpload(ctx context.Context, files []client.FileInput, meta client.Metadata, progress client.ProgressFunc) (*client.SubmitResult, error)
	Submit(ctx context.Context, url string, meta client.Metadata) (*client.SubmitResult, error)
	BatchSubmit(ctx context.Context, urls []string, meta client.Metadata) (*client.SubmitResult, error)
	Cancel(ctx context.Context, jobID string) error
}

// JobStore persists job lifecycle. All methods are best-effort.
type JobStore interface {
	RecordJobStart(job JobProgress, kind SubmissionKind, title string)
	RecordJobUpdate(job JobProgress)
	RecordJobEnd(job JobProgress)
}

// frame is a decoded upload-progress push event.
type frame struct {
	JobID    string
	Stage    string
	Progress float64
	Message  string
	Details  string
	Error    bool
	MediaID  string
}

// DefaultCancelTimeout bounds the backend cancellation request.
const DefaultCancelTimeout = 5 * time.Second

// Controller owns the lifecycle of one submission at a time: local transfer
// progress, job-id adoption, push-event filtering, exactly-once terminal
// reconciliation, and two-phase cancellation. A fresh submission is
// accepted as soon as the previous one reaches a terminal state.
type Controller struct {
	transport     Transport
	eventBus      events.EventBus
	store         JobStore
	cancelTimeout time.Duration
	logger        hclog.Logger

	mu               sync.Mutex
	busy             bool
	awaitingResponse bool
	cancelled        bool
	kind             SubmissionKind
	title            string
	token            *client.CancelToken
	jobs             map[string]*JobProgress
	order            []string
	buffer           []frame
	local            *JobProgress
	resultMediaIDs   []string
	startedAt        time.Time
	completedAt      *time.Time

	stateListeners []StateListener
	mediaListeners []MediaAddedListener
	subscription   *events.Subscription
}

// ControllerOptions wires a Controller's collaborators.
type ControllerOptions struct {
	Transport     Transport
	EventBus      events.EventBus
	Store         JobStore
	CancelTimeout time.Duration
	Logger        hclog.Logger
}

// NewController creates an upload controller. Start must be called before
// push events flow into it.
func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := opts.CancelTimeout
	if timeout <= 0 {
		timeout = DefaultCancelTimeout
	}
	return &Controller{
		transport:     opts.Transport,
		eventBus:      opts.EventBus,
		store:         opts.Store,
		cancelTimeout: timeout,
		logger:        logger.Named("upload"),
		jobs:          make(map[string]*JobProgress),
	}
}

// Start subscribes the controller to push-channel progress events.
func (c *Controller) Start() error {
	if c.eventBus == nil {
		return nil
	}
	sub, err := c.eventBus.Subscribe(events.EventFilter{
		Types:   []events.EventType{events.EventUploadProgress},
		Sources: []string{"push"},
	}, func(e events.Event) error {
		c.handlePushEvent(e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to progress events: %w", err)
	}
	c.subscription = sub
	return nil
}

// Stop unsubscribes from the event bus.
func (c *Controller) Stop() error {
	if c.eventBus != nil && c.subscription != nil {
		c.eventBus.Unsubscribe(c.subscription.ID)
		c.subscription = nil
	}
	return nil
}

// OnStateChange registers a state listener. Listeners run outside the
// controller lock.
func (c *Controller) OnStateChange(l StateListener) {
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, l)
	c.mu.Unlock()
}

// OnMediaAdded registers a collaborator notified once per produced media id.
func (c *Controller) OnMediaAdded(l MediaAddedListener) {
	c.mu.Lock()
	c.mediaListeners = append(c.mediaListeners, l)
	c.mu.Unlock()
}

// Submit validates and launches a submission. Files and URLs are mutually
// exclusive; a title is required only for single-file submissions. The
// transfer runs in the background; progress arrives through State.
func (c *Controller) Submit(sub Submission) error {
	if len(sub.Files) > 0 && len(sub.URLs) > 0 {
		return fmt.Errorf("cannot mix files and URLs in one submission")
	}
	if len(sub.Files) == 0 && len(sub.URLs) == 0 {
		return fmt.Errorf("submission is empty")
	}
	kind := sub.Kind()
	if kind == KindSingleFile && sub.Metadata.Title == "" {
		return fmt.Errorf("title is required for a single-file upload")
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("an upload is already in progress")
	}

	// Reset everything left over from the previous job and arm a fresh
	// cancellation token.
	c.busy = true
	c.awaitingResponse = true
	c.cancelled = false
	c.kind = kind
	c.title = sub.Metadata.Title
	c.jobs = make(map[string]*JobProgress)
	c.order = nil
	c.buffer = nil
	c.resultMediaIDs = nil
	c.completedAt = nil
	c.startedAt = time.Now()
	c.local = &JobProgress{Stage: initialStage(kind)}
	token := client.NewCancelToken(context.Background())
	c.token = token
	c.mu.Unlock()

	c.notifyState()
	go c.runTransfer(sub, kind, token)
	return nil
}

func initialStage(kind SubmissionKind) Stage {
	if kind == KindSingleFile || kind == KindBatchFiles {
		return StageUpload
	}
	return StageDownload
}

func (c *Controller) runTransfer(sub Submission, kind SubmissionKind, token *client.CancelToken) {
	// The controller owns the file readers once Submit has accepted them.
	defer func() {
		for _, f := range sub.Files {
			f.Close()
		}
	}()

	progress := func(sent, total int64) {
		c.setLocalProgress(token, sent, total)
	}

	var result *client.SubmitResult
	var err error
	ctx := token.Context()

	switch kind {
	case KindSingleFile:
		result, err = c.transport.Upload(ctx, sub.Files[0], sub.Metadata, progress)
	case KindBatchFiles:
		result, err = c.transport.BatchUpload(ctx, sub.Files, sub.Metadata, progress)
	case KindSingleURL:
		result, err = c.transport.Submit(ctx, sub.URLs[0], sub.Metadata)
	default:
		result, err = c.transport.BatchSubmit(ctx, sub.URLs, sub.Metadata)
	}

	if err != nil {
		// An abort-induced rejection is expected during cancellation and
		// must not surface; the cancel path owns the terminal state.
		if token.Cancelled() || errors.Is(err, context.Canceled) {
			c.logger.Debug("transfer aborted", "error", err)
			return
		}
		message := MsgUploadFailed
		details := err.Error()
		var backendErr *client.BackendError
		if errors.As(err, &backendErr) {
			message = ClassifyMessage(backendErr.Message)
			details = backendErr.Message
		}
		c.failSubmission(token, message, details)
		return
	}

	c.adoptFromResponse(token, result)
}

// setLocalProgress drives stage=upload from local transfer bytes. It is the
// only stage derived from a purely local signal.
func (c *Controller) setLocalProgress(token *client.CancelToken, sent, total int64) {
	c.mu.Lock()
	if c.token != token || c.cancelled || !c.busy || c.local == nil {
		c.mu.Unlock()
		return
	}
	if total > 0 {
		c.local.Progress = float64(sent) / float64(total) * 100
		if c.local.Progress > 100 {
			c.local.Progress = 100
		}
	}
	c.mu.Unlock()
	c.notifyState()
}

// adoptFromResponse installs the response's job id(s) as the push filter
// key and replays any events buffered before adoption.
func (c *Controller) adoptFromResponse(token *client.CancelToken, result *client.SubmitResult) {
	c.mu.Lock()
	if c.token != token || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.awaitingResponse = false

	ids := result.JobIDs
	if len(ids) == 0 && result.JobID != "" {
		ids = []string{result.JobID}
	}

	var mediaNotifications []string

	if len(ids) == 0 {
		if result.MediaID != "" {
			// The backend finished synchronously; no job to track.
			job := &JobProgress{
				Stage:    StageComplete,
				Progress: 100,
				MediaID:  result.MediaID,
				Terminal: true,
			}
			c.local = nil
			c.jobs[""] = job
			c.order = append(c.order, "")
			c.resultMediaIDs = append(c.resultMediaIDs, result.MediaID)
			mediaNotifications = append(mediaNotifications, result.MediaID)
			c.finishLocked()
		} else {
			c.failLocked(MsgUploadFailed, "backend response carried no job id")
		}
		c.mu.Unlock()
		c.dispatchMediaAdded(mediaNotifications)
		c.notifyState()
		return
	}

	c.adoptLocked(ids)

	// Replay events that raced ahead of the response. Foreign ids are
	// discarded here the same way live ones are.
	buffered := c.buffer
	c.buffer = nil
	for _, f := range buffered {
		if _, ok := c.jobs[f.JobID]; ok {
			mediaNotifications = append(mediaNotifications, c.applyFrameLocked(f)...)
		}
	}
	c.maybeFinishLocked()
	c.mu.Unlock()

	c.dispatchMediaAdded(mediaNotifications)
	c.notifyState()
}

// adoptLocked registers job ids, keeping any already auto-adopted entry.
func (c *Controller) adoptLocked(ids []string) {
	c.local = nil
	for _, id := range ids {
		if _, ok := c.jobs[id]; ok {
			continue
		}
		job := &JobProgress{
			JobID: id,
			Stage: initialStage(c.kind),
		}
		if c.kind == KindSingleFile || c.kind == KindBatchFiles {
			// The transfer finished by the time the response arrived.
			job.Progress = 100
		}
		c.jobs[id] = job
		c.order = append(c.order, id)
		if c.store != nil {
			c.store.RecordJobStart(*job, c.kind, c.title)
		}
	}
}

// handlePushEvent routes one push-channel event. Matching jobs advance;
// unknown ids are buffered only while a submission response is pending,
// otherwise discarded without side effects.
func (c *Controller) handlePushEvent(e events.Event) {
	f, ok := frameFromEvent(e)
	if !ok {
		return
	}

	var mediaNotifications []string
	changed := false

	c.mu.Lock()
	switch {
	case c.jobs[f.JobID] != nil:
		mediaNotifications = c.applyFrameLocked(f)
		c.maybeFinishLocked()
		changed = true

	case c.busy && c.awaitingResponse:
		c.buffer = append(c.buffer, f)
		if len(c.jobs) == 0 {
			// First recognizable event while awaiting the response:
			// auto-adopt its job id. The response's ids merge in later;
			// adoption is idempotent.
			c.adoptLocked([]string{f.JobID})
			buffered := c.buffer
			c.buffer = nil
			for _, bf := range buffered {
				if _, adopted := c.jobs[bf.JobID]; adopted {
					mediaNotifications = append(mediaNotifications, c.applyFrameLocked(bf)...)
				} else {
					c.buffer = append(c.buffer, bf)
				}
			}
			changed = true
		}

	default:
		c.logger.Debug("discarding event for foreign job", "job_id", f.JobID, "stage", f.Stage)
	}
	c.mu.Unlock()

	c.dispatchMediaAdded(mediaNotifications)
	if changed {
		c.notifyState()
	}
}

// applyFrameLocked advances one adopted job. Terminal reconciliation runs
// exactly once: anything after a terminal frame is dropped. Returns media
// ids to announce.
func (c *Controller) applyFrameLocked(f frame) []string {
	job := c.jobs[f.JobID]
	if job == nil || job.Terminal {
		return nil
	}

	stage := Stage(f.Stage)
	switch {
	case f.Error || stage == StageError:
		raw := f.Message
		if raw == "" {
			raw = f.Details
		}
		job.Stage = StageError
		job.Error = true
		job.Terminal = true
		job.Message = ClassifyMessage(raw)
		job.Details = f.Details
		if c.store != nil {
			c.store.RecordJobEnd(*job)
		}
		return nil

	case stage == StageComplete:
		job.Stage = StageComplete
		job.Progress = 100
		job.Terminal = true
		job.Message = f.Message
		var added []string
		if f.MediaID != "" {
			job.MediaID = f.MediaID
			c.resultMediaIDs = append(c.resultMediaIDs, f.MediaID)
			added = append(added, f.MediaID)
		}
		if c.store != nil {
			c.store.RecordJobEnd(*job)
		}
		return added

	default:
		job.Stage = stage
		job.Progress = f.Progress
		job.Message = f.Message
		job.Details = f.Details
		if c.store != nil {
			c.store.RecordJobUpdate(*job)
		}
		return nil
	}
}

// maybeFinishLocked clears the busy flag once every adopted job is
// terminal and no response is pending.
func (c *Controller) maybeFinishLocked() {
	if !c.busy || c.awaitingResponse || len(c.order) == 0 {
		return
	}
	for _, id := range c.order {
		if !c.jobs[id].Terminal {
			return
		}
	}
	c.finishLocked()
}

func (c *Controller) finishLocked() {
	c.busy = false
	now := time.Now()
	c.completedAt = &now
}

// failSubmission marks the whole submission failed with a classified
// message.
func (c *Controller) failSubmission(token *client.CancelToken, message, details string) {
	c.mu.Lock()
	if c.token != token || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.awaitingResponse = false
	c.failLocked(message, details)
	c.mu.Unlock()
	c.notifyState()
}

func (c *Controller) failLocked(message, details string) {
	if c.local != nil {
		c.local.Error = true
		c.local.Terminal = true
		c.local.Message = message
		c.local.Details = details
	}
	for _, id := range c.order {
		job := c.jobs[id]
		if job.Terminal {
			continue
		}
		job.Error = true
		job.Terminal = true
		job.Message = message
		job.Details = details
		if c.store != nil {
			c.store.RecordJobEnd(*job)
		}
	}
	c.finishLocked()
}

// Cancel aborts the active submission in two phases: the in-flight
// transfer's token first, then a best-effort backend cancellation per
// adopted job bounded by the cancel timeout. Local state always reaches the
// terminal cancelled representation and the controller is immediately ready
// for a new submission.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if !c.busy {
		c.mu.Unlock()
		return nil
	}
	c.cancelled = true
	token := c.token
	adopted := append([]string(nil), c.order...)
	c.mu.Unlock()

	if token != nil {
		token.Cancel()
	}

	// One shared deadline for the whole batch: the local terminal state
	// must arrive within a single timeout bound no matter how many jobs
	// were adopted or how the backend behaves.
	if len(adopted) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.cancelTimeout)
		var wg sync.WaitGroup
		for _, id := range adopted {
			if id == "" {
				continue
			}
			wg.Add(1)
			go func(jobID string) {
				defer wg.Done()
				if err := c.transport.Cancel(ctx, jobID); err != nil {
					c.logger.Warn("backend cancellation failed", "job_id", jobID, "error", err)
				}
			}(id)
		}
		wg.Wait()
		cancel()
	}

	c.mu.Lock()
	if c.local != nil {
		c.local.Error = true
		c.local.Terminal = true
		c.local.Message = MsgCancelled
	}
	for _, id := range c.order {
		job := c.jobs[id]
		if job.Terminal {
			continue
		}
		// The stage stays where it was; only the error flag and message
		// change.
		job.Error = true
		job.Terminal = true
		job.Message = MsgCancelled
		if c.store != nil {
			c.store.RecordJobEnd(*job)
		}
	}
	c.buffer = nil
	c.awaitingResponse = false
	c.finishLocked()
	c.mu.Unlock()

	c.notifyState()
	return nil
}

// State returns the current reactive snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	state := State{
		IsUploading:    c.busy,
		Kind:           c.kind,
		Title:          c.title,
		ResultMediaIDs: append([]string(nil), c.resultMediaIDs...),
		StartedAt:      c.startedAt,
		CompletedAt:    c.completedAt,
	}
	if len(c.order) > 0 {
		for _, id := range c.order {
			state.Jobs = append(state.Jobs, *c.jobs[id])
		}
	} else if c.local != nil {
		state.Jobs = []JobProgress{*c.local}
	}
	return state
}

func (c *Controller) notifyState() {
	c.mu.Lock()
	state := c.stateLocked()
	listeners := append([]StateListener(nil), c.stateListeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (c *Controller) dispatchMediaAdded(mediaIDs []string) {
	if len(mediaIDs) == 0 {
		return
	}
	c.mu.Lock()
	listeners := append([]MediaAddedListener(nil), c.mediaListeners...)
	c.mu.Unlock()

	for _, id := range mediaIDs {
		for _, l := range listeners {
			l(id)
		}
		if c.eventBus != nil {
			c.eventBus.PublishAsync(events.Event{
				Type:      events.EventMediaAdded,
				Source:    "upload",
				Message:   "media available",
				Data:      map[string]interface{}{"mediaId": id},
				Timestamp: time.Now(),
			})
		}
	}
}

// frameFromEvent decodes the bus event emitted by the push channel.
func frameFromEvent(e events.Event) (frame, bool) {
	if e.JobID == "" || e.Data == nil {
		return frame{}, false
	}
	f := frame{
		JobID:   e.JobID,
		Message: e.Message,
	}
	if v, ok := e.Data["stage"].(string); ok {
		f.Stage = v
	}
	if v, ok := e.Data["progress"].(float64); ok {
		f.Progress = v
	}
	if v, ok := e.Data["details"].(string); ok {
		f.Details = v
	}
	if v, ok := e.Data["error"].(bool); ok {
		f.Error = v
	}
	if v, ok := e.Data["mediaId"].(string); ok {
		f.MediaID = v
	}
	return f, f.Stage != ""
}
