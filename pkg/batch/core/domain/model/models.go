package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// JobStatus represents the state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusStopped   JobStatus = "STOPPED"
	// BatchStatusAbandoned marks a step that never ran because an upstream step failed.
	BatchStatusAbandoned JobStatus = "ABANDONED"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed status upon job/step completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusNoOp      ExitStatus = "NO_OP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// FailureList holds a list of error messages.
type FailureList []string

// ExecutionContext is a key-value store for sharing state across job and step executions.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put sets a value in the ExecutionContext with the specified key and value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value for the specified key. Returns nil and false if the value does not exist.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value for the specified key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for the specified key as an int.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Increment adds delta to an integer counter, creating it when absent.
func (ec ExecutionContext) Increment(key string, delta int) int {
	current, _ := ec.GetInt(key)
	current += delta
	ec[key] = current
	return current
}

// Copy creates a shallow copy of the ExecutionContext.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := make(ExecutionContext, len(ec))
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// JobParameters holds the parameters of one job execution.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put sets a parameter value.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// GetString retrieves a parameter as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetTime retrieves a parameter as a time.Time.
func (jp JobParameters) GetTime(key string) (time.Time, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := val.(time.Time)
	return t, ok
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// JobExecution is a single execution of a job.
type JobExecution struct {
	ID               string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
	CancelFunc       context.CancelFunc
}

// StepExecution is a single execution of a step within a job execution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}

// NewJobExecution creates a JobExecution in STARTING state.
func NewJobExecution(jobName string, params JobParameters) *JobExecution {
	return &JobExecution{
		ID:               NewID(),
		JobName:          jobName,
		Parameters:       params,
		StartTime:        time.Now(),
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// NewStepExecution creates a StepExecution attached to jobExecution.
func NewStepExecution(jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               NewID(),
		StepName:         stepName,
		JobExecution:     jobExecution,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecutionID = jobExecution.ID
		jobExecution.StepExecutions = append(jobExecution.StepExecutions, se)
	}
	return se
}

// isValidTransition checks a transition; terminal states are final.
func isValidTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped
	default:
		return false
	}
}

func transition(kind, id string, current *JobStatus, next JobStatus) {
	if !isValidTransition(*current, next) {
		logger.Warnf("%s (ID: %s): invalid state transition: %s -> %s", kind, id, *current, next)
	}
	*current = next
}

// MarkAsStarted updates the JobExecution status to STARTED.
func (je *JobExecution) MarkAsStarted() {
	transition("JobExecution", je.ID, &je.Status, BatchStatusStarted)
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	transition("JobExecution", je.ID, &je.Status, BatchStatusCompleted)
	je.ExitStatus = ExitStatusCompleted
	je.end()
}

// MarkAsFailed updates the JobExecution status to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	transition("JobExecution", je.ID, &je.Status, BatchStatusFailed)
	je.ExitStatus = ExitStatusFailed
	je.end()
	je.AddFailureException(err)
}

// MarkAsStopped updates the JobExecution status to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	transition("JobExecution", je.ID, &je.Status, BatchStatusStopped)
	je.ExitStatus = ExitStatusStopped
	je.end()
}

func (je *JobExecution) end() {
	now := time.Now()
	je.EndTime = &now
}

// AddFailureException records err once; repeated messages are dropped.
func (je *JobExecution) AddFailureException(err error) {
	je.Failures = appendFailure(je.Failures, err)
}

// Duration is the wall time of the execution so far.
func (je *JobExecution) Duration() time.Duration {
	if je.EndTime != nil {
		return je.EndTime.Sub(je.StartTime)
	}
	return time.Since(je.StartTime)
}

// StepExecutionByName returns the step execution with the given name, if any.
func (je *JobExecution) StepExecutionByName(name string) (*StepExecution, bool) {
	for _, se := range je.StepExecutions {
		if se.StepName == name {
			return se, true
		}
	}
	return nil, false
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.StartTime = time.Now()
	transition("StepExecution", se.ID, &se.Status, BatchStatusStarted)
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	transition("StepExecution", se.ID, &se.Status, BatchStatusCompleted)
	se.ExitStatus = ExitStatusCompleted
	se.end()
}

// MarkAsFailed updates the StepExecution status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	transition("StepExecution", se.ID, &se.Status, BatchStatusFailed)
	se.ExitStatus = ExitStatusFailed
	se.end()
	se.AddFailureException(err)
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	transition("StepExecution", se.ID, &se.Status, BatchStatusStopped)
	se.ExitStatus = ExitStatusStopped
	se.end()
}

// MarkAsAbandoned records that the step was not run.
func (se *StepExecution) MarkAsAbandoned() {
	transition("StepExecution", se.ID, &se.Status, BatchStatusAbandoned)
	se.ExitStatus = ExitStatusNoOp
	se.end()
}

func (se *StepExecution) end() {
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// AddFailureException records err once; repeated messages are dropped.
func (se *StepExecution) AddFailureException(err error) {
	se.Failures = appendFailure(se.Failures, err)
	se.LastUpdated = time.Now()
}

// String summarises the counters of a step execution for logs.
func (se *StepExecution) String() string {
	return fmt.Sprintf("%s[status=%s read=%d write=%d filter=%d commit=%d rollback=%d]",
		se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount)
}

func appendFailure(list FailureList, err error) FailureList {
	if err == nil {
		return list
	}
	msg := err.Error()
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
