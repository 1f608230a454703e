package gorm

import (
	"time"

	"github.com/panyam/scribe"
)

// UserModel is the GORM model for credential records.
type UserModel struct {
	ID                     string     `gorm:"primaryKey;size:64"`
	Name                   string     `gorm:"size:30"`
	Email                  string     `gorm:"size:255;index"`
	Phone                  string     `gorm:"size:32;index"`
	Password               string     `gorm:"size:80"`
	DateOfBirth            *time.Time
	AccountVerified        bool       `gorm:"default:false;index"`
	VerificationCode       int
	VerificationCodeExpire *time.Time
	ResetPasswordToken     string     `gorm:"size:64;index"`
	ResetPasswordExpire    *time.Time
	LoginMethod            string     `gorm:"size:16"`
	CreatedAt              time.Time  `gorm:"autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *scribe.User {
	return &scribe.User{
		ID:                     m.ID,
		Name:                   m.Name,
		Email:                  m.Email,
		Phone:                  m.Phone,
		Password:               m.Password,
		DateOfBirth:            m.DateOfBirth,
		AccountVerified:        m.AccountVerified,
		VerificationCode:       m.VerificationCode,
		VerificationCodeExpire: m.VerificationCodeExpire,
		ResetPasswordToken:     m.ResetPasswordToken,
		ResetPasswordExpire:    m.ResetPasswordExpire,
		LoginMethod:            m.LoginMethod,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func UserToModel(u *scribe.User) *UserModel {
	return &UserModel{
		ID:                     u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		Phone:                  u.Phone,
		Password:               u.Password,
		DateOfBirth:            u.DateOfBirth,
		AccountVerified:        u.AccountVerified,
		VerificationCode:       u.VerificationCode,
		VerificationCodeExpire: u.VerificationCodeExpire,
		ResetPasswordToken:     u.ResetPasswordToken,
		ResetPasswordExpire:    u.ResetPasswordExpire,
		LoginMethod:            u.LoginMethod,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}

// NoteModel is the GORM model for notes.
type NoteModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:64;index"`
	Title     string    `gorm:"size:255"`
	Content   string
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (NoteModel) TableName() string {
	return "notes"
}

func (m *NoteModel) ToNote() *scribe.Note {
	return &scribe.Note{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func NoteToModel(n *scribe.Note) *NoteModel {
	return &NoteModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}
