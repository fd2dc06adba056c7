// Package gojob bridges the bookings core to the go-job queue. The
// core enqueues proactive credential refreshes through its JobEnqueuer
// contract; this package maps those messages onto go-job and consumes
// them on the worker side.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-bookings/core"
)

// RetryPolicy bounds requeue behavior so a poisoned refresh job cannot
// loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackForAttempt produces nack options for the given attempt: doubling
// delay capped at MaxDelay, dead-lettering once MaxAttempts is reached.
func (p RetryPolicy) NackForAttempt(attempt int, reason string) queue.NackOptions {
	opts := queue.NackOptions{
		Requeue: true,
		Reason:  strings.TrimSpace(reason),
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	opts.Delay = delay
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Requeue = false
		opts.DeadLetter = p.DeadLetterOnMax
	}
	return opts
}

// ToExecutionMessage maps a bookings core message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the core contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// CredentialRefresher is the slice of the token lifecycle service the
// refresh job needs. *core.Service satisfies it.
type CredentialRefresher interface {
	Refresh(ctx context.Context, mentorID string) (core.MentorCredential, error)
}

// RefreshJobHandler consumes credential refresh deliveries produced by
// core.Service.PlanRefreshes.
type RefreshJobHandler struct {
	service CredentialRefresher
	policy  RetryPolicy
}

func NewRefreshJobHandler(service CredentialRefresher, policy RetryPolicy) *RefreshJobHandler {
	return &RefreshJobHandler{service: service, policy: policy}
}

// Handle processes one delivery. Domain rejections ack: a mentor who
// disconnected between planning and execution is not an error worth
// retrying. Transient failures nack with backoff.
func (h *RefreshJobHandler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if h == nil || h.service == nil {
		return fmt.Errorf("gojob: refresh handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != core.JobIDCredentialRefresh {
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "gojob: unexpected job id"})
	}
	mentorID := mentorIDFromParameters(msg.Parameters)
	if mentorID == "" {
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "gojob: refresh job missing mentor_id"})
	}

	if _, err := h.service.Refresh(ctx, mentorID); err != nil {
		if core.IsNotConnected(err) {
			return delivery.Ack(ctx)
		}
		return delivery.Nack(ctx, h.policy.NackForAttempt(attempt, err.Error()))
	}
	return delivery.Ack(ctx)
}

func mentorIDFromParameters(params map[string]any) string {
	raw, ok := params["mentor_id"]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// LoggingWorkerHook emits structured log lines for queue worker
// lifecycle events.
type LoggingWorkerHook struct {
	logger core.Logger
}

func NewLoggingWorkerHook(logger core.Logger) *LoggingWorkerHook {
	return &LoggingWorkerHook{logger: logger}
}

func (h *LoggingWorkerHook) OnStart(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Debug("job started", eventFields(event)...)
}

func (h *LoggingWorkerHook) OnSuccess(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Info("job succeeded", eventFields(event)...)
}

func (h *LoggingWorkerHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	fields := eventFields(event)
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	h.logger.Error("job failed", fields...)
}

func (h *LoggingWorkerHook) OnRetry(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	fields := append(eventFields(event), "delay", event.Delay.String())
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	h.logger.Warn("job retrying", fields...)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID)
	}
	return fields
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ worker.Hook      = (*LoggingWorkerHook)(nil)
)
