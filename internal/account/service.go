// Package account manages user registration, login sessions and per-user settings.
package account

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/phenbot/study-engine/internal/cache"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

// ErrInvalidCredentials is returned when an email and password do not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Config holds account service settings.
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
}

// Service implements account operations on top of a user store and a session cache.
type Service struct {
	logger   *observability.Logger
	users    storage.UserStore
	sessions cache.Client
	config   Config
	now      func() time.Time
}

// NewService creates an account service.
func NewService(logger *observability.Logger, cfg Config, users storage.UserStore, sessions cache.Client) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		logger:   logger,
		users:    users,
		sessions: sessions,
		config:   cfg,
		now:      time.Now,
	}
}

// UserID derives the stable user id for an email address.
func UserID(email string) string {
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// Register creates a new account with default preferences and zeroed analytics.
func (s *Service) Register(ctx context.Context, email, password, username string) (*domain.Profile, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || password == "" || username == "" {
		return nil, domain.InvalidInput("Missing required fields", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := &domain.Profile{
		UserID:         UserID(email),
		Email:          email,
		Username:       username,
		PasswordHash:   string(hash),
		CreatedAt:      s.now().UTC(),
		Preferences:    domain.DefaultPreferences(),
		Analytics:      domain.NewAnalytics(),
		CustomSubjects: []string{},
	}

	if err := s.users.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, domain.Conflict("User already exists", err)
		}
		return nil, domain.StorageFailure("create profile", err)
	}

	s.logger.Info().Str("user_id", profile.UserID).Msg("User registered")
	return profile, nil
}

// Login verifies credentials, advances the study streak and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.InvalidInput("Email and password required", nil)
	}

	profile, err := s.profile(ctx, UserID(email))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.Unauthorized("User not found", ErrInvalidCredentials)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized("Invalid password", ErrInvalidCredentials)
	}

	now := s.now().UTC()
	profile.Preferences.StudyStreak = nextStreak(profile.Preferences.StudyStreak, profile.LastLogin, now)
	profile.LastLogin = &now

	if err := s.users.SaveProfile(ctx, profile); err != nil {
		return nil, domain.StorageFailure("save profile", err)
	}

	session, err := s.openSession(ctx, profile, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", profile.UserID).Int("streak", profile.Preferences.StudyStreak).Msg("User logged in")
	return &LoginResult{Token: session.Token, Session: *session, Profile: profile}, nil
}

// nextStreak counts whole days since the last login: one day extends the streak,
// a longer gap restarts it and a same-day login leaves it alone.
func nextStreak(streak int, lastLogin *time.Time, now time.Time) int {
	days := 1
	if lastLogin != nil {
		days = int(now.Sub(*lastLogin) / (24 * time.Hour))
	}
	switch {
	case days == 1:
		return streak + 1
	case days > 1:
		return 1
	default:
		return streak
	}
}

// Profile returns the stored profile for a user.
func (s *Service) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profile(ctx, userID)
}

func (s *Service) profile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("User not found", err)
		}
		return nil, domain.StorageFailure("load profile", err)
	}
	return profile, nil
}

func (s *Service) save(ctx context.Context, profile *domain.Profile) error {
	if err := s.users.SaveProfile(ctx, profile); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.NotFound("User not found", err)
		}
		return domain.StorageFailure("save profile", err)
	}
	return nil
}

// PreferencesPatch carries the preference fields to change. Nil fields are left alone.
type PreferencesPatch struct {
	AnswerLength *string `json:"answerLength,omitempty"`
	AnalogyStyle *string `json:"analogyStyle,omitempty"`
	BloomsLevel  *string `json:"bloomsLevel,omitempty"`
	StudyStreak  *int    `json:"studyStreak,omitempty"`
	FocusLevel   *string `json:"focusLevel,omitempty"`
	Theme        *string `json:"theme,omitempty"`
}

var answerLengths = []string{"short", "medium", "long"}

func (p PreferencesPatch) validate() error {
	if p.AnswerLength != nil && !slices.Contains(answerLengths, *p.AnswerLength) {
		return domain.InvalidInput(fmt.Sprintf("answerLength must be one of %s", strings.Join(answerLengths, ", ")), nil)
	}
	if p.BloomsLevel != nil && *p.BloomsLevel != "" && !slices.Contains(domain.BloomLevels, domain.BloomLevel(*p.BloomsLevel)) {
		return domain.InvalidInput("unknown bloomsLevel: "+*p.BloomsLevel, nil)
	}
	if p.StudyStreak != nil && *p.StudyStreak < 0 {
		return domain.InvalidInput("studyStreak must not be negative", nil)
	}
	return nil
}

func (p PreferencesPatch) apply(prefs *domain.Preferences) {
	if p.AnswerLength != nil {
		prefs.AnswerLength = *p.AnswerLength
	}
	if p.AnalogyStyle != nil {
		prefs.AnalogyStyle = *p.AnalogyStyle
	}
	if p.BloomsLevel != nil {
		prefs.BloomsLevel = *p.BloomsLevel
	}
	if p.StudyStreak != nil {
		prefs.StudyStreak = *p.StudyStreak
	}
	if p.FocusLevel != nil {
		prefs.FocusLevel = *p.FocusLevel
	}
	if p.Theme != nil {
		prefs.Theme = *p.Theme
	}
}

// UpdatePreferences merges the patch into the user's preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*domain.Preferences, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	patch.apply(&profile.Preferences)

	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}
	return &profile.Preferences, nil
}

// Analytics returns the user's learning analytics.
func (s *Service) Analytics(ctx context.Context, userID string) (*domain.Analytics, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &profile.Analytics, nil
}

// Subjects lists the user's custom subjects.
func (s *Service) Subjects(ctx context.Context, userID string) ([]string, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.CustomSubjects == nil {
		return []string{}, nil
	}
	return profile.CustomSubjects, nil
}

// AddSubject appends a custom subject unless it is already present.
func (s *Service) AddSubject(ctx context.Context, userID, subject string) ([]string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.InvalidInput("subject is required", nil)
	}

	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(profile.CustomSubjects, subject) {
		return profile.CustomSubjects, nil
	}

	profile.CustomSubjects = append(profile.CustomSubjects, subject)
	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}
	return profile.CustomSubjects, nil
}

// RemoveSubject drops a custom subject. Removing an absent subject is not an error.
func (s *Service) RemoveSubject(ctx context.Context, userID, subject string) ([]string, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := slices.DeleteFunc(slices.Clone(profile.CustomSubjects), func(v string) bool { return v == subject })
	if len(kept) == len(profile.CustomSubjects) {
		return profile.CustomSubjects, nil
	}

	profile.CustomSubjects = kept
	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}
	return kept, nil
}
