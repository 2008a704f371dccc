package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/phenbot/study-engine/internal/domain"
)

var (
	bucketUsers      = []byte("users")
	bucketDocuments  = []byte("documents")
	bucketHistory    = []byte("history")
	bucketFlashcards = []byte("flashcards")
)

// BoltStore implements Store on an embedded bbolt file. Each top-level bucket
// holds one nested bucket per user keyed by insertion sequence.
type BoltStore struct {
	db *bbolt.DB
}

// storedFlashcard carries the origin flag that the public JSON form omits.
type storedFlashcard struct {
	Card        domain.Flashcard `json:"card"`
	AIGenerated bool             `json:"aiGenerated"`
}

// OpenBolt opens or creates a bbolt database file.
func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Migrate creates the top-level buckets.
func (s *BoltStore) Migrate(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketDocuments, bucketHistory, bucketFlashcards} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping reports whether the file is still open.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(userID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return nil, err
	}
	profile.CustomSubjects = nonNil(profile.CustomSubjects)
	return &profile, nil
}

func (s *BoltStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(profile.UserID)) != nil {
			return ErrConflict
		}
		return putJSON(b, []byte(profile.UserID), profile)
	})
}

func (s *BoltStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(profile.UserID)) == nil {
			return ErrNotFound
		}
		return putJSON(b, []byte(profile.UserID), profile)
	})
}

func (s *BoltStore) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var doc domain.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) GetDocument(ctx context.Context, userID, docID string) (*domain.Document, error) {
	var found *domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments).Bucket([]byte(userID))
		if b == nil {
			return ErrNotFound
		}
		_, doc, err := findDocument(b, docID)
		if err != nil {
			return err
		}
		found = doc
		return nil
	})
	return found, err
}

func (s *BoltStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketDocuments).CreateBucketIfNotExists([]byte(doc.UserID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, seqKey(seq), doc)
	})
}

func (s *BoltStore) DeleteDocument(ctx context.Context, userID, docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments).Bucket([]byte(userID))
		if b == nil {
			return ErrNotFound
		}
		key, _, err := findDocument(b, docID)
		if err != nil {
			return err
		}
		return b.Delete(key)
	})
}

func (s *BoltStore) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := putJSON(b, seqKey(seq), entry); err != nil {
			return err
		}
		if limit <= 0 {
			return nil
		}

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-limit; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListHistory(ctx context.Context, userID string, n int) ([]domain.HistoryEntry, error) {
	entries := []domain.HistoryEntry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHistory).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e domain.HistoryEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lastN(entries, n), nil
}

func (s *BoltStore) SaveFlashcard(ctx context.Context, userID string, card domain.Flashcard) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketFlashcards).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, seqKey(seq), storedFlashcard{Card: card, AIGenerated: card.AIGenerated})
	})
}

func (s *BoltStore) ListFlashcards(ctx context.Context, userID string) (domain.FlashcardDeck, error) {
	deck := domain.FlashcardDeck{UserMade: []domain.Flashcard{}, AIGenerated: []domain.Flashcard{}}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFlashcards).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var stored storedFlashcard
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			card := stored.Card
			card.AIGenerated = stored.AIGenerated
			if card.AIGenerated {
				deck.AIGenerated = append(deck.AIGenerated, card)
			} else {
				deck.UserMade = append(deck.UserMade, card)
			}
			return nil
		})
	})
	return deck, err
}

func findDocument(b *bbolt.Bucket, docID string) ([]byte, *domain.Document, error) {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var doc domain.Document
		if err := json.Unmarshal(v, &doc); err != nil {
			return nil, nil, err
		}
		if doc.ID == docID {
			return k, &doc, nil
		}
	}
	return nil, nil, ErrNotFound
}

func putJSON(b *bbolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// seqKey encodes a sequence big-endian so byte order matches insertion order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
