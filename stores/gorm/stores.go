// Package gorm implements the scribe stores on a relational database via
// GORM. The caller constructs the *gorm.DB with whichever driver it wants;
// this package never picks one.
package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panyam/scribe"
)

// AutoMigrate runs database migrations for all scribe tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&NoteModel{},
	)
}

// UserStore implements scribe.UserStore using GORM.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *scribe.User) (*scribe.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	// Verified identities are exclusive; the check stands in for the
	// partial unique index the mongo backend uses.
	var count int64
	if err := db.Model(&UserModel{}).
		Where("email = ? AND account_verified = ?", u.Email, true).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, scribe.ErrDuplicateEmail
	}

	model := UserToModel(u)
	model.ID = uuid.NewString()
	model.AccountVerified = false
	if err := db.Create(model).Error; err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) Save(ctx context.Context, u *scribe.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	model := UserToModel(u)
	result := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", u.ID).
		Select("name", "email", "phone", "password", "date_of_birth",
			"account_verified", "verification_code", "verification_code_expire",
			"reset_password_token", "reset_password_expire", "login_method").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return scribe.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) SaveFields(ctx context.Context, u *scribe.User, fields ...string) error {
	if err := u.ValidateFields(fields...); err != nil {
		return err
	}
	updates := map[string]any{}
	for _, f := range fields {
		switch f {
		case "verificationCode":
			updates["verification_code"] = u.VerificationCode
			updates["verification_code_expire"] = u.VerificationCodeExpire
		case "accountVerified":
			updates["account_verified"] = u.AccountVerified
		case "loginMethod":
			updates["login_method"] = u.LoginMethod
		case "resetPasswordToken":
			updates["reset_password_token"] = u.ResetPasswordToken
			updates["reset_password_expire"] = u.ResetPasswordExpire
		case "password":
			updates["password"] = u.Password
		}
	}
	result := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", u.ID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return scribe.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*scribe.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scribe.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u := model.ToUser()
	u.Password = ""
	return u, nil
}

func (s *UserStore) FindVerified(ctx context.Context, email, phone string) (*scribe.User, error) {
	var model UserModel
	q := s.db.WithContext(ctx).Where("account_verified = ?", true)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil, nil
	}
	err := q.First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := model.ToUser()
	u.Password = ""
	return u, nil
}

func (s *UserStore) FindVerifiedByEmail(ctx context.Context, email string, withPassword bool) (*scribe.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).
		Where("email = ? AND account_verified = ?", email, true).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := model.ToUser()
	if !withPassword {
		u.Password = ""
	}
	return u, nil
}

func (s *UserStore) FindUnverified(ctx context.Context, email, phone string) ([]*scribe.User, error) {
	q := s.db.WithContext(ctx).Where("account_verified = ?", false)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil, nil
	}
	var models []UserModel
	if err := q.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]*scribe.User, len(models))
	for i := range models {
		users[i] = models[i].ToUser()
	}
	return users, nil
}

func (s *UserStore) DeleteUnverifiedExcept(ctx context.Context, keepID, email, phone string) error {
	q := s.db.WithContext(ctx).Where("id <> ? AND account_verified = ?", keepID, false)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil
	}
	return q.Delete(&UserModel{}).Error
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*scribe.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).
		Where("reset_password_token = ? AND reset_password_expire > ?", hash, now).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

// NoteStore implements scribe.NoteStore using GORM.
type NoteStore struct {
	db *gorm.DB
}

func NewNoteStore(db *gorm.DB) *NoteStore {
	return &NoteStore{db: db}
}

func (s *NoteStore) Create(ctx context.Context, n *scribe.Note) (*scribe.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	model := NoteToModel(n)
	model.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return model.ToNote(), nil
}

func (s *NoteStore) FindByID(ctx context.Context, id string) (*scribe.Note, error) {
	var model NoteModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scribe.ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToNote(), nil
}

func (s *NoteStore) FindByUser(ctx context.Context, userID string) ([]*scribe.Note, error) {
	var models []NoteModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	notes := make([]*scribe.Note, len(models))
	for i := range models {
		notes[i] = models[i].ToNote()
	}
	return notes, nil
}

func (s *NoteStore) Update(ctx context.Context, n *scribe.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&NoteModel{}).Where("id = ?", n.ID).
		Updates(map[string]any{"title": n.Title, "content": n.Content})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return scribe.ErrNoteNotFound
	}
	return nil
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&NoteModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return scribe.ErrNoteNotFound
	}
	return nil
}
