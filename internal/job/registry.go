package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/notify"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/queue"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/requirements"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

// DefaultRetention is how long expired and failed jobs linger before the
// periodic sweep removes them.
const DefaultRetention = time.Hour

// defaultProcessTimeout bounds a single verify-then-settle pipeline run.
const defaultProcessTimeout = 2 * time.Minute

// Engine is the facilitator protocol logic the registry drives.
type Engine interface {
	Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)
	Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)
}

// Submitter is the sequential submission queue contract.
type Submitter interface {
	Enqueue(task queue.Task) error
}

// Options configures a Registry.
type Options struct {
	// Requirements parameterizes issued payment requirements.
	Requirements requirements.Config

	// Fiat parameterizes the fiat payment option offered alongside.
	Fiat requirements.FiatConfig

	// DefaultPayTo is the payee used when a create call names none.
	DefaultPayTo string

	// Retention is the sweep window for terminal failure states.
	Retention time.Duration

	// ProcessTimeout bounds a verify-then-settle run.
	ProcessTimeout time.Duration

	Engine    Engine
	Queue     Submitter
	Notifier  notify.Notifier
	Scheduler Scheduler
	Logger    *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry owns every payment job and mediates all state transitions.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*PaymentJob
	byOrder map[string]string // order id -> latest job id

	reqCfg         requirements.Config
	fiatCfg        requirements.FiatConfig
	defaultPayTo   string
	retention      time.Duration
	processTimeout time.Duration

	engine    Engine
	queue     Submitter
	notifier  notify.Notifier
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time

	waiters sync.Map // job id -> chan struct{}, closed when processing ends
}

// NewRegistry creates a registry. Engine and Queue are required.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Engine == nil || opts.Queue == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "registry requires engine and queue", nil)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = NewTimerScheduler()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	processTimeout := opts.ProcessTimeout
	if processTimeout <= 0 {
		processTimeout = defaultProcessTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Registry{
		jobs:           make(map[string]*PaymentJob),
		byOrder:        make(map[string]string),
		reqCfg:         opts.Requirements,
		fiatCfg:        opts.Fiat,
		defaultPayTo:   opts.DefaultPayTo,
		retention:      retention,
		processTimeout: processTimeout,
		engine:         opts.Engine,
		queue:          opts.Queue,
		notifier:       notifier,
		scheduler:      scheduler,
		logger:         logger,
		now:            now,
	}, nil
}

// CreateParams are the inputs of CreateJob.
type CreateParams struct {
	OrderID                    string
	AmountUSD                  float64
	Description                string
	Resource                   string
	RequiresManualConfirmation bool
	PayTo                      string
}

// CreateJob creates a payment job and issues its requirements. Creation is
// idempotent per order id: while a live job exists for the order, the same
// job is returned unchanged.
func (r *Registry) CreateJob(p CreateParams) (*PaymentJob, error) {
	if p.OrderID == "" {
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "order id is required", nil)
	}

	payTo := p.PayTo
	if payTo == "" {
		payTo = r.defaultPayTo
	}
	resource := p.Resource
	if resource == "" {
		resource = "/orders/" + p.OrderID
	}

	r.mu.Lock()
	if existingID, ok := r.byOrder[p.OrderID]; ok {
		if existing, ok := r.jobs[existingID]; ok && existing.Status.Live() {
			clone := existing.clone()
			r.mu.Unlock()
			return clone, nil
		}
	}

	req, err := requirements.Build(p.AmountUSD, resource, p.Description, payTo, r.reqCfg)
	if err != nil {
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "building payment requirements", err)
	}

	now := r.now()
	j := &PaymentJob{
		ID:                         uuid.NewString(),
		OrderID:                    p.OrderID,
		AmountUSD:                  p.AmountUSD,
		AmountAtomic:               req.MaxAmountRequired,
		Resource:                   resource,
		Description:                p.Description,
		Status:                     StatusPaymentRequired,
		Requirements:               req,
		RequiresManualConfirmation: p.RequiresManualConfirmation,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		ExpiresAt:                  now.Add(time.Duration(req.MaxTimeoutSeconds) * time.Second),
	}
	r.jobs[j.ID] = j
	r.byOrder[p.OrderID] = j.ID
	clone := j.clone()
	r.mu.Unlock()

	jobID := j.ID
	r.scheduler.Arm(jobID, clone.ExpiresAt, func() { r.expire(jobID) })
	r.logger.Info("payment job created",
		"jobId", clone.ID, "orderId", clone.OrderID, "amountAtomic", clone.AmountAtomic)
	r.publish(clone)
	return clone, nil
}

// FiatOption returns the fiat payment alternative for a job, or nil when
// fiat payments are disabled.
func (r *Registry) FiatOption(j *PaymentJob) *x402.FiatOption {
	return requirements.FiatOption(j.AmountUSD, r.fiatCfg)
}

// SubmitPayload accepts a payment proof for a job, locks the payment
// method, and drives the proof through verification and settlement. For
// crypto payloads the call blocks until the queued pipeline finishes or
// ctx is done; a pipeline outlives a canceled ctx and its late result is
// applied (or discarded) by the registry as usual.
func (r *Registry) SubmitPayload(ctx context.Context, jobID string, payload x402.PaymentPayload) (*PaymentJob, error) {
	if err := payload.Validate(); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "invalid payment payload", err).WithJob(jobID)
	}

	r.mu.Lock()
	j, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeNotFound, "unknown payment job", x402.ErrJobNotFound).WithJob(jobID)
	}

	// Settled and completed jobs return their cached result unchanged.
	if (j.Status == StatusSettled || j.Status == StatusCompleted) && j.SettleResult != nil {
		clone := j.clone()
		r.mu.Unlock()
		return clone, nil
	}
	if j.Status.Terminal() {
		clone := j.clone()
		r.mu.Unlock()
		return clone, x402.NewPaymentError(x402.ErrCodeConflict,
			"job is in terminal state "+string(clone.Status), x402.ErrInvalidState).WithJob(jobID)
	}

	if r.now().After(j.ExpiresAt) {
		j.Status = StatusExpired
		j.Error = x402.ReasonExpired
		j.UpdatedAt = r.now()
		clone := j.clone()
		r.mu.Unlock()
		r.scheduler.Cancel(jobID)
		r.publish(clone)
		return clone, x402.NewPaymentError(x402.ErrCodeExpired, "payment deadline passed", x402.ErrJobExpired).WithJob(jobID)
	}

	if j.Method != "" && j.Method != payload.Method {
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeConflict,
			"job is locked to method "+string(j.Method), x402.ErrMethodConflict).WithJob(jobID)
	}
	if j.Status != StatusPaymentRequired {
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeConflict,
			"payment already being processed", x402.ErrInvalidState).WithJob(jobID)
	}

	p := payload
	j.Payload = &p
	j.Method = payload.Method
	j.Status = StatusPaymentReceived
	j.UpdatedAt = r.now()
	received := j.clone()
	r.mu.Unlock()

	r.scheduler.Cancel(jobID)
	r.publish(received)

	if payload.Method == x402.MethodFiat {
		return r.settleFiat(jobID, payload)
	}

	done := make(chan struct{})
	r.waiters.Store(jobID, done)
	if err := r.queue.Enqueue(func() { r.process(jobID) }); err != nil {
		r.waiters.Delete(jobID)
		failed, ok := r.fail(jobID, x402.ReasonSubmissionFailed, "submission queue unavailable")
		if ok {
			r.publish(failed)
		}
		return failed, x402.NewPaymentError(x402.ErrCodeSettlementFailed, "submission queue unavailable", err).WithJob(jobID)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.GetJob(jobID)
}

// settleFiat records external fiat settlement. The bank transfer already
// happened outside the ledger; the reference is the settlement evidence
// and completion always waits for manual confirmation.
func (r *Registry) settleFiat(jobID string, payload x402.PaymentPayload) (*PaymentJob, error) {
	result := &x402.SettleResponse{
		Success:     true,
		Transaction: payload.Fiat.Reference,
		Payer:       payload.Fiat.Currency + " transfer",
		Method:      x402.MethodFiat,
	}
	clone, ok := r.advance(jobID, StatusPaymentReceived, StatusSettled, func(j *PaymentJob) {
		j.SettleResult = result
		j.RequiresManualConfirmation = true
	})
	if !ok {
		return nil, x402.NewPaymentError(x402.ErrCodeConflict, "job no longer accepts settlement", x402.ErrInvalidState).WithJob(jobID)
	}
	r.publish(clone)
	return clone, nil
}

// process runs the verify-then-settle pipeline for one job. It executes on
// the submission queue worker, so at most one pipeline touches the ledger
// at a time. Every transition re-checks the job's current status; results
// arriving after expiry are discarded, never applied.
func (r *Registry) process(jobID string) {
	defer func() {
		if done, ok := r.waiters.LoadAndDelete(jobID); ok {
			close(done.(chan struct{}))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.processTimeout)
	defer cancel()

	snapshot, err := r.GetJob(jobID)
	if err != nil || snapshot.Payload == nil {
		return
	}
	payload := *snapshot.Payload
	reqs := snapshot.Requirements

	if _, ok := r.advance(jobID, StatusPaymentReceived, StatusVerifying, nil); !ok {
		return
	}

	verify, err := r.engine.Verify(ctx, payload, reqs)
	if err != nil {
		r.logger.Error("verification errored", "jobId", jobID, "error", err)
		if failed, ok := r.fail(jobID, x402.ReasonVerificationError, err.Error()); ok {
			r.publish(failed)
		}
		return
	}
	if !r.attachVerify(jobID, verify) {
		return
	}
	if !verify.IsValid {
		r.logger.Warn("payment verification rejected", "jobId", jobID, "reason", verify.InvalidReason)
		if failed, ok := r.fail(jobID, verify.InvalidReason, verify.InvalidMessage); ok {
			r.publish(failed)
		}
		return
	}

	verified, ok := r.advance(jobID, StatusVerifying, StatusVerified, nil)
	if !ok {
		return
	}
	r.publish(verified)

	if _, ok := r.advance(jobID, StatusVerified, StatusSettling, nil); !ok {
		return
	}

	settle, err := r.engine.Settle(ctx, payload, reqs)
	if err != nil {
		r.logger.Error("settlement errored", "jobId", jobID, "error", err)
		if failed, ok := r.fail(jobID, x402.ReasonSubmissionFailed, err.Error()); ok {
			r.publish(failed)
		}
		return
	}
	if !r.attachSettle(jobID, settle) {
		return
	}
	if !settle.Success {
		r.logger.Warn("settlement rejected", "jobId", jobID, "reason", settle.ErrorReason)
		if failed, ok := r.fail(jobID, settle.ErrorReason, settle.ErrorMessage); ok {
			r.publish(failed)
		}
		return
	}

	settled, ok := r.advance(jobID, StatusSettling, StatusSettled, nil)
	if !ok {
		return
	}
	r.publish(settled)

	if !settled.RequiresManualConfirmation {
		if completed, ok := r.advance(jobID, StatusSettled, StatusCompleted, nil); ok {
			r.publish(completed)
		}
	}
}

// ConfirmManually resolves a settled job awaiting confirmation.
func (r *Registry) ConfirmManually(jobID, confirmedBy string) (*PaymentJob, error) {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeNotFound, "unknown payment job", x402.ErrJobNotFound).WithJob(jobID)
	}
	if j.Status != StatusSettled {
		status := j.Status
		r.mu.Unlock()
		return nil, x402.NewPaymentError(x402.ErrCodeConflict,
			"confirmation requires settled status, job is "+string(status), x402.ErrInvalidState).WithJob(jobID)
	}

	now := r.now()
	j.Status = StatusCompleted
	j.ConfirmedBy = confirmedBy
	j.ConfirmedAt = &now
	j.UpdatedAt = now
	clone := j.clone()
	r.mu.Unlock()

	r.logger.Info("payment manually confirmed", "jobId", jobID, "confirmedBy", confirmedBy)
	r.publish(clone)
	return clone, nil
}

// GetJob returns a copy of the job with the given id.
func (r *Registry) GetJob(jobID string) (*PaymentJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, x402.NewPaymentError(x402.ErrCodeNotFound, "unknown payment job", x402.ErrJobNotFound).WithJob(jobID)
	}
	return j.clone(), nil
}

// GetJobByOrderID returns a copy of the latest job for an order id.
func (r *Registry) GetJobByOrderID(orderID string) (*PaymentJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobID, ok := r.byOrder[orderID]
	if !ok {
		return nil, x402.NewPaymentError(x402.ErrCodeNotFound, "no job for order "+orderID, x402.ErrJobNotFound)
	}
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, x402.NewPaymentError(x402.ErrCodeNotFound, "no job for order "+orderID, x402.ErrJobNotFound)
	}
	return j.clone(), nil
}

// ListByStatus returns copies of every job in the given status. Intended
// for operational visibility, not control flow.
func (r *Registry) ListByStatus(status Status) []*PaymentJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*PaymentJob
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, j.clone())
		}
	}
	return out
}

// SweepExpired removes expired and failed jobs whose deadline is older
// than the retention window. Completed jobs are retained indefinitely.
func (r *Registry) SweepExpired() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.Status != StatusExpired && j.Status != StatusFailed {
			continue
		}
		if j.ExpiresAt.After(cutoff) {
			continue
		}
		delete(r.jobs, id)
		if r.byOrder[j.OrderID] == id {
			delete(r.byOrder, j.OrderID)
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("swept stale payment jobs", "count", removed)
	}
	return removed
}

// Close releases the registry's timers. The queue is owned by the caller
// and closed separately.
func (r *Registry) Close() {
	r.scheduler.Close()
}

// expire is the scheduler callback. Only a job still awaiting payment
// expires; anything that progressed is left alone.
func (r *Registry) expire(jobID string) {
	clone, ok := r.advance(jobID, StatusPaymentRequired, StatusExpired, func(j *PaymentJob) {
		j.Error = x402.ReasonExpired
	})
	if !ok {
		return
	}
	r.logger.Info("payment job expired", "jobId", jobID, "orderId", clone.OrderID)
	r.publish(clone)
}

// advance applies from -> to if the job is currently in from and the
// transition is legal. It returns false when the job is unknown, terminal,
// or has progressed elsewhere; callers discard their result in that case.
func (r *Registry) advance(jobID string, from, to Status, mutate func(*PaymentJob)) (*PaymentJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != from || !canTransition(from, to) {
		return nil, false
	}
	j.Status = to
	j.UpdatedAt = r.now()
	if mutate != nil {
		mutate(j)
	}
	return j.clone(), true
}

// fail pushes a non-terminal job to failed. Terminal jobs are left
// untouched and false is returned.
func (r *Registry) fail(jobID, reason, message string) (*PaymentJob, bool) {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status.Terminal() {
		r.mu.Unlock()
		return nil, false
	}
	j.Status = StatusFailed
	j.Error = reason
	if message != "" && message != reason {
		j.Error = reason + ": " + message
	}
	j.UpdatedAt = r.now()
	clone := j.clone()
	r.mu.Unlock()

	r.scheduler.Cancel(jobID)
	return clone, true
}

// publish emits a notification for a transition of interest without
// blocking the caller. Delivery failures never touch job state.
func (r *Registry) publish(j *PaymentJob) {
	ev := notify.Event{
		JobID:     j.ID,
		OrderID:   j.OrderID,
		Status:    string(j.Status),
		Method:    j.Method,
		Reason:    j.Error,
		Timestamp: j.UpdatedAt,
	}
	if j.SettleResult != nil {
		ev.Transaction = j.SettleResult.Transaction
		ev.Payer = j.SettleResult.Payer
	} else if j.VerifyResult != nil {
		ev.Payer = j.VerifyResult.Payer
	}
	if j.ConfirmedBy != "" {
		ev.ConfirmedBy = j.ConfirmedBy
	}
	go r.notifier.Notify(context.Background(), ev)
}

// attachVerify records the verification outcome unless the job already
// reached a terminal state (late results are discarded).
func (r *Registry) attachVerify(jobID string, v *x402.VerifyResponse) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status.Terminal() {
		return false
	}
	j.VerifyResult = v
	j.UpdatedAt = r.now()
	return true
}

// attachSettle records the settlement outcome unless the job already
// reached a terminal state.
func (r *Registry) attachSettle(jobID string, s *x402.SettleResponse) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status.Terminal() {
		return false
	}
	j.SettleResult = s
	j.UpdatedAt = r.now()
	return true
}
