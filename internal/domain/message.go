package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTextLength     = 4000
	MaxFileNameLength = 256
	MaxFileMimeLength = 128

	// HistoryLimit is how many recent messages a new connection receives.
	HistoryLimit = 200

	DeletedMarker = "[deleted]"
)

// FileRef points at an uploaded file announced in the chat.
type FileRef struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileMime string `json:"fileMime"`
}

type Message struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Text         string     `json:"text"`
	File         *FileRef   `json:"file,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Deleted      bool       `json:"deleted"`
	Edited       bool       `json:"edited"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	OriginalText string     `json:"originalText"`
	Likers       []string   `json:"likers"`
}

// NewTextMessage builds an unsaved text message. The text is cut to
// MaxTextLength runes.
func NewTextMessage(author, text string) (*Message, error) {
	text = Truncate(text, MaxTextLength)
	if author == "" {
		return nil, ErrMissingField
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return &Message{
		Username: author,
		Text:     text,
		Likers:   []string{},
	}, nil
}

// NewFileMessage builds an unsaved message announcing a file. Text is empty.
func NewFileMessage(author string, file FileRef) (*Message, error) {
	if author == "" || strings.TrimSpace(file.FileID) == "" {
		return nil, ErrMissingField
	}
	file.FileName = Truncate(file.FileName, MaxFileNameLength)
	file.FileMime = Truncate(file.FileMime, MaxFileMimeLength)
	return &Message{
		Username: author,
		File:     &file,
		Likers:   []string{},
	}, nil
}

// ToggleLike adds identity to the likers if absent, removes it otherwise,
// and returns a copy of the resulting likers.
func (m *Message) ToggleLike(identity string) []string {
	idx := -1
	for i, u := range m.Likers {
		if u == identity {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.Likers = append(m.Likers, identity)
	} else {
		m.Likers = append(m.Likers[:idx], m.Likers[idx+1:]...)
	}
	return m.LikersCopy()
}

// ApplyEdit replaces the body. OriginalText is captured on the first edit only.
func (m *Message) ApplyEdit(identity, text string, now time.Time) error {
	if m.Username != identity {
		return ErrNotAuthor
	}
	if m.Deleted {
		return ErrMessageDeleted
	}
	text = Truncate(text, MaxTextLength)
	if text == "" {
		return ErrMissingField
	}
	if !m.Edited {
		m.OriginalText = m.Text
	}
	m.Text = text
	m.Edited = true
	m.EditedAt = &now
	return nil
}

// SoftDelete scrubs the content but keeps the record.
func (m *Message) SoftDelete(identity string) error {
	if m.Username != identity {
		return ErrNotAuthor
	}
	m.Deleted = true
	m.Text = DeletedMarker
	m.File = nil
	return nil
}

func (m *Message) CanUnsend(identity string) error {
	if m.Username != identity {
		return ErrNotAuthor
	}
	return nil
}

func (m *Message) LikersCopy() []string {
	out := make([]string, len(m.Likers))
	copy(out, m.Likers)
	return out
}

// Clone returns a deep copy so callers never share mutable state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	c.Likers = m.LikersCopy()
	return &c
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
