// Package answer routes study questions to the curated dataset or the generative backend.
package answer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phenbot/study-engine/internal/dataset"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/llm"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/retrieval"
	"github.com/phenbot/study-engine/internal/storage"
)

const (
	// DegradedConfidence is reported when a dataset answer stands in for a failed backend call.
	DegradedConfidence = 60

	// GeneratedBaseConfidence seeds the estimate for backend answers.
	GeneratedBaseConfidence = 75

	// UnavailableMessage is returned when neither the backend nor the dataset can answer.
	UnavailableMessage = "Service temporarily unavailable. Please try again."
)

// Config holds router configuration.
type Config struct {
	DatasetPolicy       string // exact or fuzzy
	EscalationThreshold int
	MaxChunks           int
	HistoryLimit        int
	BackendTimeout      time.Duration
	ContextCharBudget   int
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		DatasetPolicy:       retrieval.PolicyExact,
		EscalationThreshold: 70,
		MaxChunks:           retrieval.DefaultMaxChunks,
		HistoryLimit:        100,
		BackendTimeout:      5 * time.Second,
		ContextCharBudget:   DefaultContextCharBudget,
	}
}

// Request is one question asked by a user.
type Request struct {
	UserID     string
	Question   string
	Mode       domain.Mode
	Subject    string
	Difficulty int
}

// Stores groups the persistence collaborators the router needs.
type Stores struct {
	Users     storage.UserStore
	Documents storage.DocumentStore
	History   storage.HistoryStore
}

// Metrics counts answers by path.
type Metrics struct {
	Dataset   atomic.Int64
	Generated atomic.Int64
	Degraded  atomic.Int64
	Failed    atomic.Int64
}

// Router composes dataset lookup, context retrieval and the backend into one answer.
type Router struct {
	logger    *observability.Logger
	dataset   *dataset.Dataset
	backend   llm.Backend
	stores    Stores
	matcher   retrieval.DatasetMatcher
	retriever *retrieval.ContextRetriever
	config    Config
	metrics   *Metrics
	now       func() time.Time
}

// NewRouter creates a new answer router. A nil dataset behaves as empty.
func NewRouter(logger *observability.Logger, cfg Config, ds *dataset.Dataset, backend llm.Backend, stores Stores) (*Router, error) {
	defaults := DefaultConfig()
	if cfg.EscalationThreshold < 0 {
		cfg.EscalationThreshold = defaults.EscalationThreshold
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = defaults.MaxChunks
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaults.BackendTimeout
	}
	if cfg.ContextCharBudget <= 0 {
		cfg.ContextCharBudget = defaults.ContextCharBudget
	}

	matcher, err := retrieval.NewDatasetMatcher(cfg.DatasetPolicy)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		ds = dataset.Empty()
	}
	if backend == nil {
		return nil, errors.New("answer router requires a backend")
	}

	return &Router{
		logger:    logger,
		dataset:   ds,
		backend:   backend,
		stores:    stores,
		matcher:   matcher,
		retriever: retrieval.NewContextRetriever(cfg.MaxChunks),
		config:    cfg,
		metrics:   &Metrics{},
		now:       time.Now,
	}, nil
}

// Metrics returns the router's path counters.
func (r *Router) Metrics() *Metrics {
	return r.metrics
}

// AnswerQuestion answers one question and records it in the user's analytics and history.
// When neither the backend nor the dataset can answer, the returned record has source
// Error and the error carries the NoKnowledge kind.
func (r *Router) AnswerQuestion(ctx context.Context, req Request) (*domain.AnswerRecord, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.InvalidInput("Invalid question", nil)
	}
	if req.Difficulty == 0 {
		req.Difficulty = domain.DefaultDifficulty
	}
	if req.Difficulty < 1 || req.Difficulty > 10 {
		return nil, domain.InvalidInput(fmt.Sprintf("difficulty must be between 1 and 10, got %d", req.Difficulty), nil)
	}
	if req.Mode == "" {
		req.Mode = domain.ModeNormal
	}

	log := r.logger.WithContext(ctx).WithOperation("answer_question").WithUser(req.UserID)
	start := r.now()

	var (
		bloom   domain.BloomLevel
		refs    []domain.RetrievalResult
		profile *domain.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bloom = ClassifyBloom(question)
		return nil
	})
	g.Go(func() error {
		refs = r.retrieveContext(gctx, log, req.UserID, question)
		return nil
	})
	g.Go(func() error {
		profile = r.loadProfile(gctx, log, req.UserID)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hasContext := len(refs) > 0
	match, hit := r.matcher.Match(r.dataset, req.Subject, question)

	record := &domain.AnswerRecord{
		Question:   question,
		Mode:       req.Mode,
		Subject:    subjectOrGeneral(req.Subject),
		Difficulty: req.Difficulty,
		BloomLevel: bloom,
		PDFSources: documentRefs(refs),
	}

	if hit && match.Confidence > r.config.EscalationThreshold && !hasContext {
		record.Answer = match.Answer
		record.Source = domain.SourceDataset
		record.Confidence = match.Confidence
		r.metrics.Dataset.Add(1)
	} else {
		var prefs *domain.Preferences
		if profile != nil {
			prefs = &profile.Preferences
		}
		prompt := BuildPrompt(prefs, req.Mode, question, refs, r.config.ContextCharBudget)

		text, err := r.complete(ctx, prompt)
		switch {
		case err == nil:
			record.Answer = text
			record.Source = domain.SourceAI
			if hasContext {
				record.Source = domain.SourceAIWithPDF
			}
			record.Confidence = EstimateConfidence(text, GeneratedBaseConfidence, record.Source, hasContext)
			r.metrics.Generated.Add(1)

		case hit:
			log.Warn().Err(err).Msg("Backend unavailable, answering from dataset")
			record.Answer = match.Answer
			record.Source = domain.SourceDatasetDegraded
			record.Confidence = DegradedConfidence
			r.metrics.Degraded.Add(1)

		default:
			log.Error().Err(err).Msg("Backend unavailable and no dataset answer")
			r.metrics.Failed.Add(1)
			return &domain.AnswerRecord{
				Answer:     UnavailableMessage,
				Source:     domain.SourceError,
				Confidence: 0,
				Question:   question,
				Mode:       req.Mode,
				Subject:    record.Subject,
				Difficulty: req.Difficulty,
				BloomLevel: bloom,
				PDFSources: []domain.DocumentRef{},
			}, domain.NoKnowledge(UnavailableMessage, err)
		}
	}

	record.AccuracyScore = EstimateConfidence(record.Answer, record.Confidence, record.Source, hasContext)

	r.recordAnalytics(ctx, log, profile, req.Subject, bloom)
	r.recordHistory(ctx, log, req.UserID, record, refs)

	log.Info().
		Str("source", string(record.Source)).
		Int("confidence", record.Confidence).
		Int("context_chunks", len(refs)).
		Dur("latency", r.now().Sub(start)).
		Msg("Question answered")

	return record, nil
}

// complete calls the backend under the configured timeout. Every failure,
// including the timeout, is reported as BackendUnavailable.
func (r *Router) complete(ctx context.Context, prompt llm.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.config.BackendTimeout)
	defer cancel()

	text, err := r.backend.Complete(callCtx, prompt)
	if err != nil {
		return "", domain.BackendUnavailable("backend call failed", err)
	}
	return text, nil
}

func (r *Router) retrieveContext(ctx context.Context, log *observability.Logger, userID, question string) []domain.RetrievalResult {
	if userID == "" || r.stores.Documents == nil {
		return nil
	}
	docs, err := r.stores.Documents.ListDocuments(ctx, userID)
	if err != nil {
		log.Warn().Err(domain.StorageFailure("list documents", err)).Msg("Answering without document context")
		return nil
	}
	return r.retriever.Retrieve(question, docs)
}

func (r *Router) loadProfile(ctx context.Context, log *observability.Logger, userID string) *domain.Profile {
	if userID == "" || r.stores.Users == nil {
		return nil
	}
	profile, err := r.stores.Users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(domain.StorageFailure("load profile", err)).Msg("Answering without preferences")
		}
		return nil
	}
	return profile
}

// recordAnalytics is a read-modify-write of the profile loaded at the start of the
// request. Concurrent questions from one user can overwrite each other's counts.
func (r *Router) recordAnalytics(ctx context.Context, log *observability.Logger, profile *domain.Profile, subject string, bloom domain.BloomLevel) {
	if profile == nil {
		return
	}

	a := &profile.Analytics
	a.QuestionsAsked++
	if subject != "" && !slices.Contains(a.ConceptsLearned, subject) {
		a.ConceptsLearned = append(a.ConceptsLearned, subject)
	}
	if a.BloomsLevels == nil {
		a.BloomsLevels = make(map[domain.BloomLevel]int)
	}
	a.BloomsLevels[bloom]++

	if err := r.stores.Users.SaveProfile(ctx, profile); err != nil {
		log.Error().Err(domain.StorageFailure("save analytics", err)).Msg("Failed to persist analytics")
	}
}

func (r *Router) recordHistory(ctx context.Context, log *observability.Logger, userID string, record *domain.AnswerRecord, refs []domain.RetrievalResult) {
	if userID == "" || r.stores.History == nil {
		return
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.DocumentID
	}

	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: r.now().UTC(),
		Question:  record.Question,
		Answer:    record.Answer,
		Metadata: domain.HistoryMetadata{
			Mode:        record.Mode,
			Subject:     record.Subject,
			Source:      record.Source,
			Accuracy:    record.Confidence,
			BloomsLevel: record.BloomLevel,
			Difficulty:  record.Difficulty,
			PDFSources:  ids,
		},
	}

	if err := r.stores.History.AppendHistory(ctx, userID, entry, r.config.HistoryLimit); err != nil {
		log.Error().Err(domain.StorageFailure("append history", err)).Msg("Failed to persist history")
	}
}

func documentRefs(refs []domain.RetrievalResult) []domain.DocumentRef {
	out := make([]domain.DocumentRef, len(refs))
	for i, ref := range refs {
		out[i] = domain.DocumentRef{Name: ref.DocumentName, ID: ref.DocumentID}
	}
	return out
}

func subjectOrGeneral(subject string) string {
	if subject == "" {
		return domain.SubjectGeneral
	}
	return subject
}
