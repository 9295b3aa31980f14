package evaluation

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/engine/ingest"
	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/logger"
)

type EventStatus string

const (
	StatusEvaluating EventStatus = "evaluating"
	StatusCompleted  EventStatus = "completed"
	StatusFailed     EventStatus = "failed"
	StatusCanceled   EventStatus = "canceled"
)

// Event reports the lifecycle of one question's evaluation, consumed by the
// websocket progress stream.
type Event struct {
	AssessmentID string
	QuestionID   string
	Status       EventStatus
	Progress     ingest.Progress
	Error        string
}

type Evaluator interface {
	EvaluateResponse(ctx context.Context, questionPrompt, responseText string) (*Result, error)
}

// Runner fans question evaluations out to the external evaluator. Questions
// are independent, so evaluations run and land out of order; each one is
// individually cancelable. A canceled or failed evaluation ingests nothing,
// which the aggregator already treats as a zero-contribution answer.
type Runner struct {
	evaluator Evaluator
	ingestor  *ingest.Ingestor
	sem       chan struct{}

	mu          sync.Mutex
	inflight    map[string]*inflightRun
	subscribers map[string]map[chan Event]struct{}
}

type inflightRun struct {
	cancel context.CancelFunc
}

// NewRunner limits concurrent evaluator calls to workers; extra submissions
// queue behind the semaphore but stay cancelable while waiting.
func NewRunner(evaluator Evaluator, ingestor *ingest.Ingestor, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		evaluator:   evaluator,
		ingestor:    ingestor,
		sem:         make(chan struct{}, workers),
		inflight:    make(map[string]*inflightRun),
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

func inflightKey(assessmentID, questionID string) string {
	return assessmentID + ":" + questionID
}

// Evaluate starts an asynchronous evaluation for one question and returns
// immediately. A prior in-flight evaluation for the same question is canceled
// first; its result would be superseded anyway.
func (r *Runner) Evaluate(assessment *models.Assessment, question *models.Question, responseText string) {
	key := inflightKey(assessment.ID, question.ID)

	ctx, cancel := context.WithCancel(context.Background())
	entry := &inflightRun{cancel: cancel}

	r.mu.Lock()
	if prior, ok := r.inflight[key]; ok {
		prior.cancel()
	}
	r.inflight[key] = entry
	r.mu.Unlock()

	r.publish(Event{AssessmentID: assessment.ID, QuestionID: question.ID, Status: StatusEvaluating})

	go r.run(ctx, key, entry, assessment, question, responseText)
}

func (r *Runner) run(ctx context.Context, key string, entry *inflightRun, assessment *models.Assessment, question *models.Question, responseText string) {
	// A superseding submission replaces the entry under this key; only the
	// run that still owns it may remove it.
	defer func() {
		r.mu.Lock()
		if r.inflight[key] == entry {
			delete(r.inflight, key)
		}
		r.mu.Unlock()
	}()

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		r.publish(Event{AssessmentID: assessment.ID, QuestionID: question.ID, Status: StatusCanceled, Error: ctx.Err().Error()})
		return
	}

	result, err := r.evaluator.EvaluateResponse(ctx, question.Prompt, responseText)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, context.Canceled) {
			status = StatusCanceled
		}
		metrics.EvaluationsTotal.WithLabelValues(string(status)).Inc()
		if status == StatusFailed {
			logger.Warn("Evaluation failed, question left unevaluated",
				zap.String("assessment_id", assessment.ID),
				zap.String("question_id", question.ID),
				zap.Error(err),
			)
		}
		r.publish(Event{AssessmentID: assessment.ID, QuestionID: question.ID, Status: status, Error: err.Error()})
		return
	}

	_, progress, err := r.ingestor.Ingest(ctx, assessment, question, ingest.Result{
		ResponseText: responseText,
		EvidenceTier: result.EvidenceTier,
		AIScore:      result.AIScore,
		Confidence:   result.Confidence,
	})
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(string(StatusFailed)).Inc()
		logger.Error("Failed to ingest evaluation result",
			zap.String("assessment_id", assessment.ID),
			zap.String("question_id", question.ID),
			zap.Error(err),
		)
		r.publish(Event{AssessmentID: assessment.ID, QuestionID: question.ID, Status: StatusFailed, Error: err.Error()})
		return
	}

	metrics.EvaluationsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	r.publish(Event{AssessmentID: assessment.ID, QuestionID: question.ID, Status: StatusCompleted, Progress: progress})
}

// Cancel aborts an in-flight evaluation. Already-ingested answers are never
// touched; the question simply stays unanswered.
func (r *Runner) Cancel(assessmentID, questionID string) bool {
	key := inflightKey(assessmentID, questionID)

	r.mu.Lock()
	entry, ok := r.inflight[key]
	r.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return ok
}

// Subscribe returns a channel of evaluation events for one assessment plus a
// release function. Slow consumers drop events rather than block ingestion.
func (r *Runner) Subscribe(assessmentID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.mu.Lock()
	if r.subscribers[assessmentID] == nil {
		r.subscribers[assessmentID] = make(map[chan Event]struct{})
	}
	r.subscribers[assessmentID][ch] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.subscribers[assessmentID], ch)
		if len(r.subscribers[assessmentID]) == 0 {
			delete(r.subscribers, assessmentID)
		}
		r.mu.Unlock()
		close(ch)
	}

	return ch, release
}

func (r *Runner) publish(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch := range r.subscribers[event.AssessmentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
