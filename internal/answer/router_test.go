package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/dataset"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/llm"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

const testUser = "u1"

func mathDataset() *dataset.Dataset {
	return dataset.New(dataset.Entry{Subject: "math", Question: "What is 2+2?", Answer: "4"})
}

func newTestRouter(t *testing.T, backend llm.Backend, cfg Config) (*Router, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	profile := &domain.Profile{
		UserID:      testUser,
		Email:       "u1@example.com",
		Username:    "u1",
		CreatedAt:   time.Now(),
		Preferences: domain.DefaultPreferences(),
		Analytics:   domain.NewAnalytics(),
	}
	require.NoError(t, store.CreateProfile(context.Background(), profile))

	r, err := NewRouter(observability.NopLogger(), cfg, mathDataset(), backend, Stores{
		Users:     store,
		Documents: store,
		History:   store,
	})
	require.NoError(t, err)
	return r, store
}

func addDocument(t *testing.T, store *storage.MemoryStore, text string) {
	t.Helper()
	require.NoError(t, store.SaveDocument(context.Background(), &domain.Document{
		ID:           "doc-1",
		UserID:       testUser,
		OriginalName: "notes.pdf",
		StoredName:   "doc-1.pdf",
		UploadedAt:   time.Now(),
		Subject:      "mathematics",
		Chunks:       []domain.Chunk{{ID: "chunk-0", Text: text, Length: len(text)}},
	}))
}

func TestNewRouter_RejectsUnknownPolicy(t *testing.T) {
	_, err := NewRouter(observability.NopLogger(), Config{DatasetPolicy: "semantic"}, nil, llm.Unavailable{}, Stores{})
	assert.Error(t, err)

	_, err = NewRouter(observability.NopLogger(), DefaultConfig(), nil, nil, Stores{})
	assert.Error(t, err)
}

func TestRouter_DatasetHitSkipsBackend(t *testing.T) {
	backend := llm.NewMockBackend("should not be used")
	r, store := newTestRouter(t, backend, DefaultConfig())
	ctx := context.Background()

	rec, err := r.AnswerQuestion(ctx, Request{UserID: testUser, Question: "  What is 2+2?  ", Subject: "math"})
	require.NoError(t, err)

	assert.Equal(t, "4", rec.Answer)
	assert.Equal(t, domain.SourceDataset, rec.Source)
	assert.Equal(t, 90, rec.Confidence)
	assert.Equal(t, 100, rec.AccuracyScore)
	assert.Equal(t, domain.BloomRemember, rec.BloomLevel)
	assert.Equal(t, "What is 2+2?", rec.Question)
	assert.Equal(t, domain.ModeNormal, rec.Mode)
	assert.Equal(t, domain.DefaultDifficulty, rec.Difficulty)
	assert.Empty(t, rec.PDFSources)
	assert.Zero(t, backend.Calls())
	assert.Equal(t, int64(1), r.Metrics().Dataset.Load())

	history, err := store.ListHistory(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "4", history[0].Answer)
	assert.Equal(t, domain.SourceDataset, history[0].Metadata.Source)
	assert.Equal(t, 90, history[0].Metadata.Accuracy)
	assert.Equal(t, "math", history[0].Metadata.Subject)

	profile, err := store.GetProfile(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Analytics.QuestionsAsked)
	assert.Equal(t, []string{"math"}, profile.Analytics.ConceptsLearned)
	assert.Equal(t, 1, profile.Analytics.BloomsLevels[domain.BloomRemember])
}

func TestRouter_DocumentContextForcesBackend(t *testing.T) {
	backend := llm.NewMockBackend("Four, as the notes explain.")
	r, store := newTestRouter(t, backend, DefaultConfig())
	addDocument(t, store, "What happens when you add two and two? You get four.")

	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "What is 2+2?", Subject: "math"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAIWithPDF, rec.Source)
	assert.Equal(t, "Four, as the notes explain.", rec.Answer)
	assert.Equal(t, 100, rec.Confidence)
	assert.Equal(t, []domain.DocumentRef{{Name: "notes.pdf", ID: "doc-1"}}, rec.PDFSources)

	require.Equal(t, 1, backend.Calls())
	prompt := backend.Requests()[0]
	assert.Contains(t, prompt.UserPrompt, "From \"notes.pdf\": What happens")
	assert.Contains(t, prompt.SystemPrompt, "Focus on analyze level understanding.")

	history, err := store.ListHistory(context.Background(), testUser, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"doc-1"}, history[0].Metadata.PDFSources)
}

func TestRouter_GeneratedAnswerWithoutContext(t *testing.T) {
	backend := llm.NewMockBackend("Plants turn light into sugar.")
	r, store := newTestRouter(t, backend, DefaultConfig())

	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "How does photosynthesis work?"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAI, rec.Source)
	assert.Equal(t, 75, rec.Confidence)
	assert.Equal(t, 75, rec.AccuracyScore)
	assert.Equal(t, domain.SubjectGeneral, rec.Subject)

	profile, err := store.GetProfile(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, profile.Analytics.ConceptsLearned, "no subject given")
	assert.Equal(t, 1, profile.Analytics.QuestionsAsked)
}

func TestRouter_UsesStoredPreferences(t *testing.T) {
	backend := llm.NewMockBackend("ok")
	r, store := newTestRouter(t, backend, DefaultConfig())
	ctx := context.Background()

	profile, err := store.GetProfile(ctx, testUser)
	require.NoError(t, err)
	profile.Preferences.AnswerLength = "short"
	require.NoError(t, store.SaveProfile(ctx, profile))

	_, err = r.AnswerQuestion(ctx, Request{UserID: testUser, Question: "Why is the sky blue?", Mode: domain.ModeQuiz})
	require.NoError(t, err)

	req := backend.Requests()[0]
	assert.Equal(t, 200, req.MaxTokens)
	assert.Contains(t, req.SystemPrompt, "quick quiz question")
}

func TestRouter_DegradedDatasetAnswer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EscalationThreshold = 95
	backend := &llm.MockBackend{Err: errors.New("connection refused")}
	r, _ := newTestRouter(t, backend, cfg)

	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "What is 2+2?", Subject: "math"})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, "4", rec.Answer)
	assert.Equal(t, domain.SourceDatasetDegraded, rec.Source)
	assert.Equal(t, 60, rec.Confidence)
	assert.Equal(t, 90, rec.AccuracyScore)
	assert.Equal(t, int64(1), r.Metrics().Degraded.Load())
}

func TestRouter_NoKnowledge(t *testing.T) {
	r, store := newTestRouter(t, llm.Unavailable{}, DefaultConfig())
	ctx := context.Background()

	rec, err := r.AnswerQuestion(ctx, Request{UserID: testUser, Question: "What is dark matter?", Subject: "physics"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNoKnowledge))
	assert.ErrorIs(t, err, llm.ErrBackendUnavailable)

	require.NotNil(t, rec)
	assert.Equal(t, domain.SourceError, rec.Source)
	assert.Equal(t, 0, rec.Confidence)
	assert.Equal(t, UnavailableMessage, rec.Answer)

	history, err := store.ListHistory(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	profile, err := store.GetProfile(ctx, testUser)
	require.NoError(t, err)
	assert.Zero(t, profile.Analytics.QuestionsAsked)
}

func TestRouter_BackendTimeoutDegrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EscalationThreshold = 95
	cfg.BackendTimeout = 20 * time.Millisecond

	backend := &llm.MockBackend{
		Reply: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		},
	}
	r, _ := newTestRouter(t, backend, cfg)

	start := time.Now()
	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "What is 2+2?", Subject: "math"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.SourceDatasetDegraded, rec.Source)
	assert.Equal(t, 60, rec.Confidence)
}

func TestRouter_FuzzyPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatasetPolicy = "fuzzy"
	backend := llm.NewMockBackend("unused")
	r, _ := newTestRouter(t, backend, cfg)

	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "what is 2+2?"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceDataset, rec.Source)
	assert.Equal(t, 100, rec.Confidence)
	assert.Zero(t, backend.Calls())
}

func TestRouter_InvalidInput(t *testing.T) {
	backend := llm.NewMockBackend("unused")
	r, store := newTestRouter(t, backend, DefaultConfig())

	tests := []struct {
		name string
		req  Request
	}{
		{"empty question", Request{UserID: testUser, Question: ""}},
		{"whitespace question", Request{UserID: testUser, Question: " \t\n "}},
		{"difficulty too high", Request{UserID: testUser, Question: "q", Difficulty: 11}},
		{"negative difficulty", Request{UserID: testUser, Question: "q", Difficulty: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := r.AnswerQuestion(context.Background(), tt.req)
			assert.Nil(t, rec)
			assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
		})
	}

	assert.Zero(t, backend.Calls())
	history, err := store.ListHistory(context.Background(), testUser, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRouter_HistoryKeepsMostRecent100(t *testing.T) {
	r, store := newTestRouter(t, llm.NewMockBackend("answer"), DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		_, err := r.AnswerQuestion(ctx, Request{UserID: testUser, Question: fmt.Sprintf("question %d", i)})
		require.NoError(t, err)
	}

	history, err := store.ListHistory(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, history, 100)
	for i, entry := range history {
		assert.Equal(t, fmt.Sprintf("question %d", i+5), entry.Question)
	}
}

func TestRouter_AnonymousUser(t *testing.T) {
	r, store := newTestRouter(t, llm.Unavailable{}, DefaultConfig())

	rec, err := r.AnswerQuestion(context.Background(), Request{Question: "What is 2+2?", Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDataset, rec.Source)

	history, err := store.ListHistory(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRouter_StorageFailureDoesNotBlockAnswer(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	r, err := NewRouter(observability.NopLogger(), DefaultConfig(), mathDataset(), llm.NewMockBackend("generated"), Stores{
		Users:     store,
		Documents: store,
		History:   store,
	})
	require.NoError(t, err)

	rec, err := r.AnswerQuestion(context.Background(), Request{UserID: testUser, Question: "Why is ice slippery?"})
	require.NoError(t, err)
	assert.Equal(t, "generated", rec.Answer)
}

// Concurrent questions from one user race on the profile: each request saves the
// profile it loaded, so analytics can lose increments. History appends are atomic.
func TestRouter_SameUserConcurrentWritesAreLastWriteWins(t *testing.T) {
	r, store := newTestRouter(t, llm.NewMockBackend("answer"), DefaultConfig())
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.AnswerQuestion(ctx, Request{UserID: testUser, Question: fmt.Sprintf("question %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := store.ListHistory(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Len(t, history, n)

	profile, err := store.GetProfile(ctx, testUser)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, profile.Analytics.QuestionsAsked, 1)
	assert.LessOrEqual(t, profile.Analytics.QuestionsAsked, n)
}

type failingStore struct {
	*storage.MemoryStore
}

func (f *failingStore) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	return nil, errors.New("disk on fire")
}

func (f *failingStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return nil, errors.New("disk on fire")
}

func (f *failingStore) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error {
	return errors.New("disk on fire")
}
