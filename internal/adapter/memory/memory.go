// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"soma/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu           sync.Mutex
	measurements []domain.Measurement
	users        []*domain.User
	sessions     map[string]*domain.Session

	measurementIDCounter int64
	userIDCounter        int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.MeasurementRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- MeasurementRepository ---

// ListMeasurements returns the user's measurements, newest date first.
func (db *DB) ListMeasurements(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]domain.Measurement, 0)
	for _, m := range db.measurements {
		if m.UserID == userID {
			result = append(result, m)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// AddMeasurement stores a measurement for the user.
func (db *DB) AddMeasurement(ctx context.Context, userID int64, m domain.Measurement, createdAt time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.measurementIDCounter++
	m.ID = db.measurementIDCounter
	m.UserID = userID
	m.CreatedAt = createdAt.UTC()
	db.measurements = append(db.measurements, m)
	return m.ID, nil
}

// UpdateMeasurement overwrites the values of one of the user's measurements.
func (db *DB) UpdateMeasurement(ctx context.Context, userID int64, m domain.Measurement) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.measurements {
		cur := &db.measurements[i]
		if cur.ID != m.ID || cur.UserID != userID {
			continue
		}
		cur.Date = m.Date
		cur.Weight = m.Weight
		cur.Chest = m.Chest
		cur.Waist = m.Waist
		cur.Arm = m.Arm
		cur.Leg = m.Leg
		return nil
	}
	return domain.ErrMeasurementNotFound
}

// DeleteMeasurement deletes one of the user's measurements by ID.
func (db *DB) DeleteMeasurement(ctx context.Context, userID int64, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, m := range db.measurements {
		if m.ID == id && m.UserID == userID {
			db.measurements = append(db.measurements[:i], db.measurements[i+1:]...)
			return nil
		}
	}
	return nil
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	return u, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token. Expiry is left to the caller.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
