// Package mem provides in-memory store implementations, used by tests and
// as a zero-dependency development backend.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panyam/scribe"
)

type userRecord struct {
	user *scribe.User
	seq  int
}

// UserStore is a map-backed scribe.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
	seq   int
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*userRecord)}
}

func cloneUser(u *scribe.User) *scribe.User {
	out := *u
	if u.DateOfBirth != nil {
		dob := *u.DateOfBirth
		out.DateOfBirth = &dob
	}
	if u.VerificationCodeExpire != nil {
		t := *u.VerificationCodeExpire
		out.VerificationCodeExpire = &t
	}
	if u.ResetPasswordExpire != nil {
		t := *u.ResetPasswordExpire
		out.ResetPasswordExpire = &t
	}
	return &out
}

func (s *UserStore) Create(ctx context.Context, u *scribe.User) (*scribe.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if rec.user.AccountVerified && rec.user.Email == u.Email {
			return nil, scribe.ErrDuplicateEmail
		}
	}

	stored := cloneUser(u)
	stored.ID = uuid.NewString()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.seq++
	s.users[stored.ID] = &userRecord{user: stored, seq: s.seq}
	return cloneUser(stored), nil
}

func (s *UserStore) Save(ctx context.Context, u *scribe.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[u.ID]
	if !ok {
		return scribe.ErrUserNotFound
	}
	stored := cloneUser(u)
	stored.CreatedAt = rec.user.CreatedAt
	stored.UpdatedAt = time.Now()
	if stored.Password == "" {
		stored.Password = rec.user.Password
	}
	rec.user = stored
	return nil
}

func (s *UserStore) SaveFields(ctx context.Context, u *scribe.User, fields ...string) error {
	if err := u.ValidateFields(fields...); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[u.ID]
	if !ok {
		return scribe.ErrUserNotFound
	}
	for _, f := range fields {
		switch f {
		case "verificationCode":
			rec.user.VerificationCode = u.VerificationCode
			if u.VerificationCodeExpire != nil {
				t := *u.VerificationCodeExpire
				rec.user.VerificationCodeExpire = &t
			} else {
				rec.user.VerificationCodeExpire = nil
			}
		case "accountVerified":
			rec.user.AccountVerified = u.AccountVerified
		case "loginMethod":
			rec.user.LoginMethod = u.LoginMethod
		case "resetPasswordToken":
			rec.user.ResetPasswordToken = u.ResetPasswordToken
			if u.ResetPasswordExpire != nil {
				t := *u.ResetPasswordExpire
				rec.user.ResetPasswordExpire = &t
			} else {
				rec.user.ResetPasswordExpire = nil
			}
		case "password":
			rec.user.Password = u.Password
		}
	}
	rec.user.UpdatedAt = time.Now()
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*scribe.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, scribe.ErrUserNotFound
	}
	u := cloneUser(rec.user)
	u.Password = ""
	return u, nil
}

func matches(u *scribe.User, email, phone string) bool {
	return (email != "" && u.Email == email) || (phone != "" && u.Phone == phone)
}

func (s *UserStore) FindVerified(ctx context.Context, email, phone string) (*scribe.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.AccountVerified && matches(rec.user, email, phone) {
			u := cloneUser(rec.user)
			u.Password = ""
			return u, nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindVerifiedByEmail(ctx context.Context, email string, withPassword bool) (*scribe.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.AccountVerified && rec.user.Email == email {
			u := cloneUser(rec.user)
			if !withPassword {
				u.Password = ""
			}
			return u, nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindUnverified(ctx context.Context, email, phone string) ([]*scribe.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []*userRecord
	for _, rec := range s.users {
		if !rec.user.AccountVerified && matches(rec.user, email, phone) {
			recs = append(recs, rec)
		}
	}
	// Most recent first; creation sequence breaks timestamp ties.
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].user.CreatedAt.Equal(recs[j].user.CreatedAt) {
			return recs[i].seq > recs[j].seq
		}
		return recs[i].user.CreatedAt.After(recs[j].user.CreatedAt)
	})
	out := make([]*scribe.User, len(recs))
	for i, rec := range recs {
		out[i] = cloneUser(rec.user)
	}
	return out, nil
}

func (s *UserStore) DeleteUnverifiedExcept(ctx context.Context, keepID, email, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.users {
		if id != keepID && !rec.user.AccountVerified && matches(rec.user, email, phone) {
			delete(s.users, id)
		}
	}
	return nil
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*scribe.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		u := rec.user
		if u.ResetPasswordToken == hash && u.ResetPasswordExpire != nil && u.ResetPasswordExpire.After(now) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

// NoteStore is a map-backed scribe.NoteStore.
type NoteStore struct {
	mu    sync.RWMutex
	notes map[string]*scribe.Note
}

func NewNoteStore() *NoteStore {
	return &NoteStore{notes: make(map[string]*scribe.Note)}
}

func (s *NoteStore) Create(ctx context.Context, n *scribe.Note) (*scribe.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *n
	stored.ID = uuid.NewString()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.notes[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *NoteStore) FindByID(ctx context.Context, id string) (*scribe.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, scribe.ErrNoteNotFound
	}
	out := *n
	return &out, nil
}

func (s *NoteStore) FindByUser(ctx context.Context, userID string) ([]*scribe.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scribe.Note
	for _, n := range s.notes {
		if n.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *NoteStore) Update(ctx context.Context, n *scribe.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.notes[n.ID]
	if !ok {
		return scribe.ErrNoteNotFound
	}
	updated := *n
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	s.notes[n.ID] = &updated
	return nil
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return scribe.ErrNoteNotFound
	}
	delete(s.notes, id)
	return nil
}
