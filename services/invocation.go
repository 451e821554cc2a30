package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/saturn"
)

// Invocation extends the publishable unit of work with the row state the
// batch enqueue protocol needs to persist outcomes. Submissions and
// matches implement it.
type Invocation interface {
	saturn.Invocation
	InvocationLogs() string
	InvocationFailures() int
}

// invocationOutcome is the row state produced by applying one status report.
type invocationOutcome struct {
	Status      models.SaturnStatus
	Logs        string
	NumFailures int
}

// applyInvocationUpdate folds a cluster status report into the current row
// state. Reports against terminal rows return ErrAlreadyFinalized. A retry
// report increments the failure counter unless the run was interrupted on
// the infrastructure side; past the threshold the row is forced to errored.
func applyInvocationUpdate(current models.SaturnStatus, logs string, numFailures int, update models.InvocationUpdate, maxFailures int) (invocationOutcome, error) {
	if current.IsTerminal() {
		return invocationOutcome{}, ErrAlreadyFinalized
	}

	status, err := models.ParseSaturnStatus(string(update.Status))
	if err != nil {
		return invocationOutcome{}, fmt.Errorf("%w: %q", ErrInvalidTransition, update.Status)
	}

	out := invocationOutcome{
		Status:      status,
		Logs:        logs + update.Logs,
		NumFailures: numFailures,
	}
	if status == models.SaturnStatusRetrying && !update.IsInterrupted() {
		out.NumFailures++
		if out.NumFailures >= maxFailures {
			out.Status = models.SaturnStatusErrored
			out.Logs += "Exceeded maximum number of retries.\n"
		}
	}
	return out, nil
}

// enqueueBatch runs the dispatch half of the enqueue protocol: publish every
// invocation on the topic in input order collecting futures, await the
// futures in the same order, and turn each result into a row update. The
// caller has already row-locked the invocations and persists the returned
// rows in one bulk statement.
//
// A publish failure marks only its own row errored and resumes the ordering
// key so later publishes can proceed; it never aborts the transaction.
// Publishes that failed merely because an earlier failure paused the key do
// not resume it again.
func enqueueBatch(ctx context.Context, logger *slog.Logger, dispatcher saturn.Dispatcher, topic, orderingKey, entityKind string, invocations []Invocation) []repositories.InvocationRow {
	futures := make([]*saturn.PublishResult, len(invocations))
	payloadErrs := make([]error, len(invocations))
	for i, inv := range invocations {
		payload, err := inv.SaturnPayload()
		if err != nil {
			payloadErrs[i] = err
			continue
		}
		futures[i] = dispatcher.Publish(ctx, topic, orderingKey, payload)
	}

	rows := make([]repositories.InvocationRow, len(invocations))
	for i, inv := range invocations {
		row := repositories.InvocationRow{ID: inv.InvocationID()}

		err := payloadErrs[i]
		var messageID string
		if err == nil {
			messageID, err = futures[i].Get(ctx)
		}

		if err != nil {
			row.Status = string(models.SaturnStatusErrored)
			row.Logs = inv.InvocationLogs() + "Failed to enqueue: " + err.Error() + "\n"
			row.NumFailures = inv.InvocationFailures()
			if !errors.Is(err, saturn.ErrOrderingKeyPaused) {
				if rErr := dispatcher.Resume(ctx, topic, orderingKey); rErr != nil {
					logger.ErrorContext(ctx, "failed to resume ordering key",
						"topic", topic, "ordering_key", orderingKey, "error", rErr)
				}
			}
			logger.ErrorContext(ctx, "publish failed",
				"operation", "enqueue", "entity_kind", entityKind,
				"entity_id", inv.InvocationID(), "status", row.Status, "error", err)
		} else {
			row.Status = string(models.SaturnStatusQueued)
			row.Logs = inv.InvocationLogs()
			row.NumFailures = 0
			row.MessageID = &messageID
			logger.InfoContext(ctx, "invocation enqueued",
				"operation", "enqueue", "entity_kind", entityKind,
				"entity_id", inv.InvocationID(), "status", row.Status, "message_id", messageID)
		}
		rows[i] = row
	}
	return rows
}
