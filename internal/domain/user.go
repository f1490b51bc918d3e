package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"Fullname"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phoneNumber"`
	PasswordHash string    `json:"-"`
	IsVerified   bool      `json:"isVerified"`
	IsAdmin      bool      `json:"isAdmin"`
	PendingCode  string    `json:"-"`
	SessionToken string    `json:"-"`
	Polls        []string  `json:"polls"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
