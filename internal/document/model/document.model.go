package model

import (
	"time"

	"docshare/internal/access"
)

type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a row of the member_with_email view.
type Member struct {
	DocumentID string      `json:"document_id"`
	UserID     string      `json:"user_id"`
	Role       access.Role `json:"role"`
	Email      string      `json:"email"`
	CreatedAt  time.Time   `json:"created_at"`
}

type Version struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  *string   `json:"created_by"` // nil once the author account is gone
}

type NewVersion struct {
	DocumentID string
	Content    string
	Comment    string
	CreatedBy  string
}

type DocumentView struct {
	Document *Document   `json:"document"`
	Role     access.Role `json:"role"`
}

type CreateDocRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type SaveVersionRequest struct {
	Content string `json:"content" validate:"required"`
	Comment string `json:"comment" validate:"max=500"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required"`
	Role  string `json:"role" validate:"required"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type InviteResponse struct {
	Success bool        `json:"success"`
	Error   InviteError `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}
