package users

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// MemoryRepo is a process-local Repository used when no database is configured.
type MemoryRepo struct {
	mu     sync.RWMutex
	byMail map[string]*User
	nextID int64
	clock  clockwork.Clock
}

// NewMemoryRepo creates an empty MemoryRepo. A nil clock means the wall clock.
func NewMemoryRepo(clock clockwork.Clock) *MemoryRepo {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepo{
		byMail: make(map[string]*User),
		clock:  clock,
	}
}

func (r *MemoryRepo) Create(_ context.Context, email, passwordHash string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byMail[email]; exists {
		return nil, ErrDuplicateIdentity
	}

	r.nextID++
	u := &User{
		ID:           r.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.clock.Now().UTC(),
	}
	r.byMail[email] = u

	out := *u
	return &out, nil
}

func (r *MemoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byMail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}
