// Package worker provides a background runner that drives root workflow
// applications from a task queue, decoupling submission (EnqueueRoot) from
// execution (Run/ProcessOne) the way the teacher's pkg/worker decouples
// EnqueueStartWorkflow from ProcessOne.
package worker

import (
	"time"

	"github.com/flowcore/flowexpr/pkg/api"
)

// JobType distinguishes the kinds of work a Runner can pull off a Queue,
// mirroring the teacher's taskqueue.TaskType (TaskTypeStartWorkflow,
// TaskTypeSignal).
type JobType string

const (
	// JobApplyRoot starts a brand-new workflow tree as a root expression.
	JobApplyRoot JobType = "apply-root"
	// JobCancel routes a cancel/timeout/kill flavour to an already-running
	// expression.
	JobCancel JobType = "cancel"
)

// Job is a unit of queued work, grounded on the teacher's taskqueue.Task
// shape but retargeted at Pool's root-apply/cancel entry points instead of
// Engine.Run/Engine.Signal.
type Job struct {
	ID         string
	Type       JobType
	WorkflowID string

	// ApplyRoot fields.
	Tree     api.Tree
	Workitem api.Workitem

	// Cancel fields.
	Fei     api.FEI
	Flavour api.Flavour

	EnqueuedAt time.Time
	NotBefore  time.Time

	// Attempt counts prior tries, starting at 0 for a job's first
	// delivery. The Runner increments it on each retry.
	Attempt int
}
