package models

import (
	"errors"
	"io"
	"time"
)

// ErrStaleStatus reports a guarded write that found the article in a
// different status than the caller read.
var ErrStaleStatus = errors.New("article status changed")

// ArticleStatus captures where an article is in the editorial workflow. The
// stored values are the newsroom's own labels.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "Edición"
	StatusReview    ArticleStatus = "Terminado"
	StatusPublished ArticleStatus = "Publicado"
	StatusSuspended ArticleStatus = "Desactivado"
)

// Valid reports whether s is one of the four workflow states.
func (s ArticleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished, StatusSuspended:
		return true
	}
	return false
}

// Article is a news piece stored in the articles table.
type Article struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Subtitle    string        `db:"subtitle" json:"subtitle"`
	Content     string        `db:"content" json:"content"`
	Category    string        `db:"category" json:"category"`
	ImageURL    string        `db:"image_url" json:"image_url"`
	ImageKey    string        `db:"image_key" json:"-"`
	AuthorID    string        `db:"author_id" json:"author_id"`
	AuthorName  string        `db:"author_name" json:"author_name"`
	AuthorEmail string        `db:"author_email" json:"author_email"`
	Status      ArticleStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// ArticleFields are the author-editable parts of an article.
type ArticleFields struct {
	Title    string `json:"title" form:"title" validate:"required,max=300"`
	Subtitle string `json:"subtitle" form:"subtitle" validate:"max=500"`
	Content  string `json:"content" form:"content" validate:"required"`
	Category string `json:"category" form:"category" validate:"required"`
	// Status is accepted for compatibility and ignored; creation always
	// yields a draft and edits recompute it.
	Status ArticleStatus `json:"status,omitempty" form:"status"`
}

// ImageUpload is an image blob supplied with a create or edit.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ArticleFilter constrains article listings.
type ArticleFilter struct {
	AuthorID string
	Status   []ArticleStatus
	Limit    int
}

// ArticleAction is an operation the dashboard may offer on an article.
type ArticleAction string

const (
	ActionEdit       ArticleAction = "edit"
	ActionDelete     ArticleAction = "delete"
	ActionSubmit     ArticleAction = "submit"
	ActionPublish    ArticleAction = "publish"
	ActionDeactivate ArticleAction = "deactivate"
	ActionReturn     ArticleAction = "return_to_draft"
)

// Section is a named category articles are grouped under.
type Section struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateSectionRequest names a new section.
type CreateSectionRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}
