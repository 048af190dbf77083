package domain

import "time"

type User struct {
	Id       UserId
	Email    Email
	PassHash string
	// legacy per-user thread, kept for clients that predate conversations
	DefaultThreadHandle string
	CreatedAt           time.Time
}

type Credentials struct {
	Email    Email
	Password Password
}

type PasswordReset struct {
	UserId    UserId
	TokenHash string
	ExpiresAt time.Time
}
