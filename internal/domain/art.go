package domain

import (
	"io"
	"time"
)

// Submission fields recognised in the multipart form.
const (
	FieldID          = "id"
	FieldArtName     = "artName"
	FieldArtistName  = "artistName"
	FieldDescription = "description"
	FieldImage       = "artImage"
)

// Submission is one inbound upload: the image payload plus the descriptive
// fields. It lives only for the duration of a request.
type Submission struct {
	Image       io.Reader
	Filename    string
	ContentType string
	Fields      map[string]string
}

// Field returns the named form value or an empty string.
func (s Submission) Field(name string) string {
	if s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// ArtRecord is the persisted description of an art piece. ImageURL is only
// ever set from a successful blob upload.
type ArtRecord struct {
	ID          string    `json:"-"`
	CallerID    string    `json:"id"`
	ArtName     string    `json:"artName"`
	ArtistName  string    `json:"artistName"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}
