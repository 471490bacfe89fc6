package model

import "time"

// AppUser is a purchaser contact. A purchaser may hold several workspaces.
type AppUser struct {
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	ID        int64     `json:"id,string"`
}
