package auth

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

type AccountResponse struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	IsDisabled bool      `json:"is_disabled"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Account) Response() AccountResponse {
	return AccountResponse{
		ID:         a.ID,
		Username:   a.Username,
		Role:       a.Role,
		IsDisabled: a.IsDisabled,
		CreatedAt:  a.CreatedAt,
	}
}
