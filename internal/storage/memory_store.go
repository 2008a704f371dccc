package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phenbot/study-engine/internal/domain"
)

// MemoryStore implements Store in process memory. Values are deep-copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[string]*domain.Profile
	documents  map[string][]domain.Document
	history    map[string][]domain.HistoryEntry
	flashcards map[string][]domain.Flashcard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]*domain.Profile),
		documents:  make(map[string][]domain.Document),
		history:    make(map[string][]domain.HistoryEntry),
		flashcards: make(map[string][]domain.Flashcard),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error    { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	var out domain.Profile
	if err := deepCopy(p, &out); err != nil {
		return nil, err
	}
	out.CustomSubjects = nonNil(out.CustomSubjects)
	return &out, nil
}

func (s *MemoryStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.UserID]; ok {
		return ErrConflict
	}
	return s.putProfile(profile)
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.UserID]; !ok {
		return ErrNotFound
	}
	return s.putProfile(profile)
}

func (s *MemoryStore) putProfile(profile *domain.Profile) error {
	var stored domain.Profile
	if err := deepCopy(profile, &stored); err != nil {
		return err
	}
	s.profiles[profile.UserID] = &stored
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Document{}
	if err := deepCopy(s.documents[userID], &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Document{}
	}
	return out, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, userID, docID string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.documents[userID] {
		if d.ID == docID {
			var out domain.Document
			if err := deepCopy(d, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored domain.Document
	if err := deepCopy(doc, &stored); err != nil {
		return err
	}
	s.documents[doc.UserID] = append(s.documents[doc.UserID], stored)
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, userID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[userID]
	for i, d := range docs {
		if d.ID == docID {
			s.documents[userID] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored domain.HistoryEntry
	if err := deepCopy(entry, &stored); err != nil {
		return err
	}
	entries := append(s.history[userID], stored)
	if limit > 0 && len(entries) > limit {
		entries = append([]domain.HistoryEntry(nil), entries[len(entries)-limit:]...)
	}
	s.history[userID] = entries
	return nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, userID string, n int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.HistoryEntry{}
	if err := deepCopy(lastN(s.history[userID], n), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.HistoryEntry{}
	}
	return out, nil
}

func (s *MemoryStore) SaveFlashcard(ctx context.Context, userID string, card domain.Flashcard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored domain.Flashcard
	if err := deepCopy(card, &stored); err != nil {
		return err
	}
	stored.AIGenerated = card.AIGenerated
	s.flashcards[userID] = append(s.flashcards[userID], stored)
	return nil
}

func (s *MemoryStore) ListFlashcards(ctx context.Context, userID string) (domain.FlashcardDeck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deck := domain.FlashcardDeck{UserMade: []domain.Flashcard{}, AIGenerated: []domain.Flashcard{}}
	for _, c := range s.flashcards[userID] {
		var card domain.Flashcard
		if err := deepCopy(c, &card); err != nil {
			return domain.FlashcardDeck{}, err
		}
		card.AIGenerated = c.AIGenerated
		if card.AIGenerated {
			deck.AIGenerated = append(deck.AIGenerated, card)
		} else {
			deck.UserMade = append(deck.UserMade, card)
		}
	}
	return deck, nil
}

func deepCopy(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
