package item

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	tx "github.com/datasus/sihrd/pkg/batch/core/tx"
	exception "github.com/datasus/sihrd/pkg/batch/support/util/exception"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// ChunkStep reads items of type I, converts them to O and writes them in chunks,
// each chunk in its own transaction. Any read, process or write error rolls back the
// current chunk and fails the step. Writers implementing port.Completer publish their
// output after the last chunk commits and after the reader is closed.
type ChunkStep[I, O any] struct {
	id                     string
	reader                 port.ItemReader[I]
	processor              port.ItemProcessor[I, O]
	writer                 port.ItemWriter[O]
	chunkSize              int
	txManager              tx.TransactionManager
	isolationLevel         sql.IsolationLevel
	stepExecutionListeners []port.StepExecutionListener
	chunkListeners         []port.ChunkListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that ChunkStep implements the port.Step interface.
var _ port.Step = (*ChunkStep[any, any])(nil)

// ChunkStepOption customises a ChunkStep.
type ChunkStepOption func(*chunkStepOptions)

type chunkStepOptions struct {
	isolationLevel         sql.IsolationLevel
	stepExecutionListeners []port.StepExecutionListener
	chunkListeners         []port.ChunkListener
}

// WithIsolationLevel sets the isolation level of chunk transactions ("READ_COMMITTED", "SERIALIZABLE", ...).
func WithIsolationLevel(level string) ChunkStepOption {
	return func(o *chunkStepOptions) { o.isolationLevel = parseIsolationLevel(level) }
}

// WithStepExecutionListeners registers listeners notified around the step.
func WithStepExecutionListeners(listeners ...port.StepExecutionListener) ChunkStepOption {
	return func(o *chunkStepOptions) { o.stepExecutionListeners = append(o.stepExecutionListeners, listeners...) }
}

// WithChunkListeners registers listeners notified around each chunk.
func WithChunkListeners(listeners ...port.ChunkListener) ChunkStepOption {
	return func(o *chunkStepOptions) { o.chunkListeners = append(o.chunkListeners, listeners...) }
}

// NewChunkStep creates a ChunkStep. A nil txManager means chunks run in no-op transactions.
func NewChunkStep[I, O any](
	id string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	txManager tx.TransactionManager,
	opts ...ChunkStepOption,
) *ChunkStep[I, O] {
	o := &chunkStepOptions{isolationLevel: sql.LevelDefault}
	for _, opt := range opts {
		opt(o)
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if txManager == nil {
		txManager = tx.NewNoOpTransactionManager()
	}
	return &ChunkStep[I, O]{
		id:                     id,
		reader:                 reader,
		processor:              processor,
		writer:                 writer,
		chunkSize:              chunkSize,
		txManager:              txManager,
		isolationLevel:         o.isolationLevel,
		stepExecutionListeners: o.stepExecutionListeners,
		chunkListeners:         o.chunkListeners,
		metricRecorder:         metrics.NewNoOpMetricRecorder(),
		tracer:                 metrics.NewNoOpTracer(),
	}
}

// parseIsolationLevel converts a configuration string to sql.IsolationLevel.
func parseIsolationLevel(level string) sql.IsolationLevel {
	switch level {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// ID returns the step ID.
func (s *ChunkStep[I, O]) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.id
}

// SetMetricRecorder implements port.Step.
func (s *ChunkStep[I, O]) SetMetricRecorder(recorder metrics.MetricRecorder) {
	if recorder != nil {
		s.metricRecorder = recorder
	}
}

// SetTracer implements port.Step.
func (s *ChunkStep[I, O]) SetTracer(tracer metrics.Tracer) {
	if tracer != nil {
		s.tracer = tracer
	}
}

func (s *ChunkStep[I, O]) txOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: s.isolationLevel}
}

func (s *ChunkStep[I, O]) notifyBeforeStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, se)
	}
}

func (s *ChunkStep[I, O]) notifyAfterStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, se)
	}
}

func (s *ChunkStep[I, O]) notifyBeforeChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.chunkListeners {
		l.BeforeChunk(ctx, se)
	}
}

func (s *ChunkStep[I, O]) notifyAfterChunk(ctx context.Context, se *model.StepExecution) {
	for _, l := range s.chunkListeners {
		l.AfterChunk(ctx, se)
	}
}

// Execute runs the step to completion.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (stepErr error) {
	ctx, finishSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer finishSpan()

	logger.Infof("ChunkStep '%s' started. Chunk size: %d", s.id, s.chunkSize)
	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	s.notifyBeforeStep(ctx, stepExecution)

	defer func() {
		if stepErr != nil {
			s.tracer.RecordError(ctx, s.id, stepErr)
			stepExecution.MarkAsFailed(stepErr)
		} else {
			stepExecution.MarkAsCompleted()
		}
		s.notifyAfterStep(ctx, stepExecution)
		s.metricRecorder.RecordStepEnd(ctx, stepExecution)
		logger.Infof("ChunkStep '%s' finished. %s", s.id, stepExecution.String())
	}()

	ec := stepExecution.ExecutionContext
	if err := s.reader.Open(ctx, ec); err != nil {
		return exception.NewBatchError(s.id, "failed to open ItemReader", err)
	}
	readerClosed := false
	closeReader := func() error {
		if readerClosed {
			return nil
		}
		readerClosed = true
		return s.reader.Close(ctx)
	}
	defer func() {
		if err := closeReader(); err != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.id, err)
		}
	}()

	if stream, ok := any(s.processor).(port.ItemStream); ok {
		if err := stream.Open(ctx, ec); err != nil {
			return exception.NewBatchError(s.id, "failed to open ItemProcessor", err)
		}
		defer func() {
			if err := stream.Close(ctx); err != nil {
				logger.Warnf("ChunkStep '%s': failed to close ItemProcessor: %v", s.id, err)
			}
		}()
	}

	if err := s.writer.Open(ctx, ec); err != nil {
		return exception.NewBatchError(s.id, "failed to open ItemWriter", err)
	}
	defer func() {
		if err := s.writer.Close(ctx); err != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemWriter: %v", s.id, err)
			if stepErr == nil {
				stepErr = exception.NewBatchError(s.id, "failed to close ItemWriter", err)
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		eof, err := s.processChunk(ctx, stepExecution)
		if err != nil {
			return err
		}
		if eof {
			break
		}
	}

	if err := closeReader(); err != nil {
		return exception.NewBatchError(s.id, "failed to close ItemReader", err)
	}

	if completer, ok := any(s.writer).(port.Completer); ok {
		start := time.Now()
		if err := completer.Complete(ctx); err != nil {
			return exception.NewBatchError(s.id, "failed to publish output of "+s.writer.GetTableName(), err)
		}
		s.metricRecorder.RecordDuration(ctx, "publish", time.Since(start), map[string]string{
			"step":  s.id,
			"table": s.writer.GetTableName(),
		})
	}
	return nil
}

// processChunk reads, processes and writes one chunk in its own transaction.
// It reports whether the reader is exhausted.
func (s *ChunkStep[I, O]) processChunk(ctx context.Context, stepExecution *model.StepExecution) (bool, error) {
	txAdapter, err := s.txManager.Begin(ctx, s.txOptions())
	if err != nil {
		return false, exception.NewBatchError(s.id, "failed to begin transaction for chunk", err)
	}
	s.notifyBeforeChunk(ctx, stepExecution)
	defer s.notifyAfterChunk(ctx, stepExecution)

	rollback := func(cause error) error {
		if rbErr := s.txManager.Rollback(txAdapter); rbErr != nil {
			logger.Errorf("ChunkStep '%s': rollback failed: %v", s.id, rbErr)
		}
		stepExecution.RollbackCount++
		return cause
	}

	items := make([]O, 0, s.chunkSize)
	read, filtered := 0, 0
	eof := false
	for read < s.chunkSize {
		item, err := s.reader.Read(ctx)
		if err != nil {
			if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
				eof = true
				break
			}
			return false, rollback(exception.NewBatchError(s.id, "item read failed", err))
		}
		read++

		out, err := s.processor.Process(ctx, item)
		if err != nil {
			if errors.Is(err, port.ErrItemFiltered) {
				filtered++
				continue
			}
			return false, rollback(exception.NewBatchError(s.id, "item process failed", err))
		}
		items = append(items, out)
	}

	stepExecution.ReadCount += read
	stepExecution.FilterCount += filtered
	s.metricRecorder.RecordItemRead(ctx, s.id, read)
	s.metricRecorder.RecordItemProcess(ctx, s.id, read-filtered)
	if filtered > 0 {
		s.metricRecorder.RecordItemFilter(ctx, s.id, filtered)
	}

	if read == 0 {
		// Nothing was done in this transaction.
		if rbErr := s.txManager.Rollback(txAdapter); rbErr != nil {
			logger.Debugf("ChunkStep '%s': rollback of empty chunk failed: %v", s.id, rbErr)
		}
		return true, nil
	}

	if len(items) > 0 {
		if err := s.writer.Write(ctx, txAdapter, items); err != nil {
			return false, rollback(exception.NewBatchError(s.id, "item write failed", err))
		}
	}

	if err := s.txManager.Commit(txAdapter); err != nil {
		stepExecution.RollbackCount++
		return false, exception.NewBatchError(s.id, "failed to commit transaction for chunk", err)
	}
	stepExecution.WriteCount += len(items)
	stepExecution.CommitCount++
	stepExecution.ExecutionContext.Put("readCount", stepExecution.ReadCount)
	stepExecution.ExecutionContext.Put("writeCount", stepExecution.WriteCount)
	s.metricRecorder.RecordItemWrite(ctx, s.id, len(items))
	s.metricRecorder.RecordChunkCommit(ctx, s.id, len(items))
	logger.Debugf("ChunkStep '%s': committed chunk of %d items (read total: %d).", s.id, len(items), stepExecution.ReadCount)
	return eof, nil
}
