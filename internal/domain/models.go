// Package domain holds the study engine's shared types and error taxonomy.
package domain

import "time"

// BloomLevel is a cognitive level in the six-level taxonomy.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// BloomLevels lists every level from lowest to highest order.
var BloomLevels = []BloomLevel{
	BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate,
}

// Source labels an answer's provenance.
type Source string

const (
	SourceDataset         Source = "Local Dataset"
	SourceAI              Source = "AI Assistant"
	SourceAIWithPDF       Source = "AI + PDF Reference"
	SourceDatasetDegraded Source = "Local Dataset (AI unavailable)"
	SourceError           Source = "Error"
)

// Mode selects a conversational style for generated answers.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeReverse Mode = "reverse"
	ModeSummary Mode = "summary"
	ModeQuiz    Mode = "quiz"
)

// SubjectGeneral is the fallback subject label.
const SubjectGeneral = "general"

// DefaultDifficulty applies when a question carries no difficulty.
const DefaultDifficulty = 5

// Chunk is a bounded slice of a document's text, the unit of retrieval.
type Chunk struct {
	ID     string `json:"id" db:"chunk_id"`
	Text   string `json:"text" db:"text"`
	Length int    `json:"length" db:"length"`
}

// Document is an uploaded PDF after text extraction.
type Document struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	OriginalName string    `json:"originalName" db:"original_name"`
	StoredName   string    `json:"filename" db:"stored_name"`
	UploadedAt   time.Time `json:"uploadedAt" db:"uploaded_at"`
	Size         int64     `json:"size" db:"size"`
	Pages        int       `json:"pages" db:"pages"`
	Subject      string    `json:"subject" db:"subject"`
	Keywords     []string  `json:"keywords" db:"-"`
	Chunks       []Chunk   `json:"chunks" db:"-"`
}

// RetrievalResult is a chunk ranked against a question.
type RetrievalResult struct {
	Text         string `json:"text"`
	Score        int    `json:"score"`
	DocumentName string `json:"pdfName"`
	DocumentID   string `json:"pdfId"`
}

// DocumentRef names a document that contributed context to an answer.
type DocumentRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// AnswerRecord is the response to one question.
type AnswerRecord struct {
	Answer        string        `json:"answer"`
	Confidence    int           `json:"confidence"`
	Source        Source        `json:"source"`
	BloomLevel    BloomLevel    `json:"bloomsLevel"`
	AccuracyScore int           `json:"accuracyScore"`
	Question      string        `json:"question"`
	Mode          Mode          `json:"mode"`
	Subject       string        `json:"subject"`
	Difficulty    int           `json:"difficulty"`
	PDFSources    []DocumentRef `json:"pdfSources"`
}

// HistoryMetadata describes how a historical answer was produced.
type HistoryMetadata struct {
	Mode        Mode       `json:"mode"`
	Subject     string     `json:"subject"`
	Source      Source     `json:"source"`
	Accuracy    int        `json:"accuracy"`
	BloomsLevel BloomLevel `json:"bloomsLevel"`
	Difficulty  int        `json:"difficulty"`
	PDFSources  []string   `json:"pdfSources"`
}

// HistoryEntry is one answered question in a user's history.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Question  string          `json:"question"`
	Answer    string          `json:"answer"`
	Metadata  HistoryMetadata `json:"metadata"`
}

// Preferences tune how answers are generated for a user.
type Preferences struct {
	AnswerLength string `json:"answerLength"`
	AnalogyStyle string `json:"analogyStyle"`
	BloomsLevel  string `json:"bloomsLevel"`
	StudyStreak  int    `json:"studyStreak"`
	FocusLevel   string `json:"focusLevel"`
	Theme        string `json:"theme"`
}

// DefaultPreferences returns the preferences given to new accounts.
func DefaultPreferences() Preferences {
	return Preferences{
		AnswerLength: "medium",
		AnalogyStyle: "general",
		BloomsLevel:  string(BloomAnalyze),
		StudyStreak:  0,
		FocusLevel:   "medium",
		Theme:        "dark",
	}
}

// Analytics tracks a user's learning activity.
type Analytics struct {
	QuestionsAsked  int                `json:"questionsAsked"`
	ConceptsLearned []string           `json:"conceptsLearned"`
	WeakAreas       []string           `json:"weakAreas"`
	StudyTime       int                `json:"studyTime"`
	BloomsLevels    map[BloomLevel]int `json:"bloomsLevels"`
}

// NewAnalytics returns zeroed analytics with every level tallied at 0.
func NewAnalytics() Analytics {
	levels := make(map[BloomLevel]int, len(BloomLevels))
	for _, l := range BloomLevels {
		levels[l] = 0
	}
	return Analytics{
		ConceptsLearned: []string{},
		WeakAreas:       []string{},
		BloomsLevels:    levels,
	}
}

// Profile is a user's persisted record.
type Profile struct {
	UserID         string      `json:"userId"`
	Email          string      `json:"email"`
	Username       string      `json:"username"`
	PasswordHash   string      `json:"passwordHash"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastLogin      *time.Time  `json:"lastLogin"`
	Preferences    Preferences `json:"preferences"`
	Analytics      Analytics   `json:"analytics"`
	CustomSubjects []string    `json:"customSubjects"`
}

// Flashcard is a question/answer study card.
type Flashcard struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Subject        string     `json:"subject"`
	Difficulty     int        `json:"difficulty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SourceDocument string     `json:"sourceDocument,omitempty"`
	LastReviewed   *time.Time `json:"lastReviewed"`
	ReviewCount    int        `json:"reviewCount"`
	CorrectCount   int        `json:"correctCount"`
	Tags           []string   `json:"tags"`
	AIGenerated    bool       `json:"-"`
}

// FlashcardDeck groups a user's cards by origin.
type FlashcardDeck struct {
	UserMade    []Flashcard `json:"userMade"`
	AIGenerated []Flashcard `json:"aiGenerated"`
}
