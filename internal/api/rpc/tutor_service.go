// Package rpc exposes the tutor over Connect with JSON messages.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

const (
	// ServiceName is the fully-qualified Connect service name.
	ServiceName = "phenbot.v1.TutorService"

	AskProcedure     = "/" + ServiceName + "/Ask"
	HistoryProcedure = "/" + ServiceName + "/History"

	defaultHistoryLimit = 20
)

// TutorService implements the Connect tutor service.
type TutorService struct {
	logger  *observability.Logger
	router  *answer.Router
	history storage.HistoryStore
}

// NewTutorService creates a new tutor service.
func NewTutorService(logger *observability.Logger, router *answer.Router, history storage.HistoryStore) *TutorService {
	return &TutorService{
		logger:  logger,
		router:  router,
		history: history,
	}
}

// Handler returns the mount path and handler for the service. Callers must place
// the user id in the request context before it reaches the handler.
func (s *TutorService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AskProcedure, connect.NewUnaryHandler(AskProcedure, s.Ask, opts...))
	mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, s.History, opts...))
	return "/" + ServiceName + "/", mux
}

// AskRequest is the Ask request message.
type AskRequest struct {
	Question   string `json:"question"`
	Mode       string `json:"mode,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Difficulty int32  `json:"difficulty,omitempty"`
}

// AskResponse is the Ask response message. Error is set when no answer could be produced.
type AskResponse struct {
	Answer        string            `json:"answer"`
	Confidence    int32             `json:"confidence"`
	Source        string            `json:"source"`
	BloomsLevel   string            `json:"blooms_level"`
	AccuracyScore int32             `json:"accuracy_score"`
	Question      string            `json:"question"`
	Mode          string            `json:"mode"`
	Subject       string            `json:"subject"`
	Sources       []*SourceDocument `json:"sources"`
	Error         string            `json:"error,omitempty"`
}

// SourceDocument names a document used as context.
type SourceDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryRequest is the History request message.
type HistoryRequest struct {
	Limit int32 `json:"limit,omitempty"`
}

// HistoryResponse is the History response message.
type HistoryResponse struct {
	Entries []*HistoryEntry `json:"entries"`
}

// HistoryEntry is one answered question.
type HistoryEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	Accuracy  int32  `json:"accuracy"`
	Subject   string `json:"subject"`
}

// Ask answers a question for the authenticated user.
func (s *TutorService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	msg := req.Msg
	record, err := s.router.AnswerQuestion(ctx, answer.Request{
		UserID:     userID,
		Question:   msg.Question,
		Mode:       domain.Mode(msg.Mode),
		Subject:    msg.Subject,
		Difficulty: int(msg.Difficulty),
	})
	if err != nil && !domain.IsKind(err, domain.KindNoKnowledge) {
		return nil, toConnectError(err)
	}

	resp := toAskResponse(record)
	if err != nil {
		resp.Error = record.Answer
		resp.Answer = ""
	}
	return connect.NewResponse(resp), nil
}

// History returns the user's most recent answered questions, oldest first.
func (s *TutorService) History(ctx context.Context, req *connect.Request[HistoryRequest]) (*connect.Response[HistoryResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	limit := int(req.Msg.Limit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries, err := s.history.ListHistory(ctx, userID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("History lookup failed")
		return nil, connect.NewError(connect.CodeInternal, errors.New("history unavailable"))
	}

	resp := &HistoryResponse{Entries: make([]*HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, &HistoryEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Question:  e.Question,
			Answer:    e.Answer,
			Source:    string(e.Metadata.Source),
			Accuracy:  int32(e.Metadata.Accuracy),
			Subject:   e.Metadata.Subject,
		})
	}
	return connect.NewResponse(resp), nil
}

func requireUser(ctx context.Context) (string, error) {
	userID := observability.UserIDFromContext(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return userID, nil
}

func toAskResponse(r *domain.AnswerRecord) *AskResponse {
	resp := &AskResponse{
		Answer:        r.Answer,
		Confidence:    int32(r.Confidence),
		Source:        string(r.Source),
		BloomsLevel:   string(r.BloomLevel),
		AccuracyScore: int32(r.AccuracyScore),
		Question:      r.Question,
		Mode:          string(r.Mode),
		Subject:       r.Subject,
		Sources:       make([]*SourceDocument, 0, len(r.PDFSources)),
	}
	for _, ref := range r.PDFSources {
		resp.Sources = append(resp.Sources, &SourceDocument{ID: ref.ID, Name: ref.Name})
	}
	return resp
}

func toConnectError(err error) *connect.Error {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return connect.NewError(connect.CodeInternal, err)
	}

	code := connect.CodeInternal
	switch de.Kind {
	case domain.KindInvalidInput:
		code = connect.CodeInvalidArgument
	case domain.KindUnauthorized:
		code = connect.CodeUnauthenticated
	case domain.KindNotFound:
		code = connect.CodeNotFound
	case domain.KindConflict:
		code = connect.CodeAlreadyExists
	case domain.KindBackendUnavailable, domain.KindNoKnowledge:
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, errors.New(de.Message))
}
