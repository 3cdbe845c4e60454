package llm

import (
	"errors"
	"strings"
)

// File kinds accepted in FileRef.Type besides a MIME type.
const (
	FileKindImage    = "image"
	FileKindDocument = "document"
)

// SessionHeader carries the relay session ID. The relay echoes it on stream
// responses and generates one when the client sends none.
const SessionHeader = "X-Chatrelay-Session"

// ErrEmptyPrompt is returned when a prompt has neither text nor files.
var ErrEmptyPrompt = errors.New("message content is required when no files are attached")

// Prompt is the JSON body a client POSTs to the relay:
//
//	{"message": "...", "model": "...", "max_tokens": 2000, "files": [...]}
type Prompt struct {
	Message   string    `json:"message"`
	Model     string    `json:"model,omitempty"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
	Files     []FileRef `json:"files,omitempty"`
}

// FileRef points at an attachment. Type is either a MIME type or one of the
// FileKind constants. Exactly one of Path, URL or Data is expected to be set;
// Data holds a data URL or bare base64 payload.
type FileRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// Validate rejects prompts that carry nothing to send upstream.
func (p *Prompt) Validate() error {
	if strings.TrimSpace(p.Message) == "" && len(p.Files) == 0 {
		return ErrEmptyPrompt
	}
	return nil
}

// HasDocuments reports whether any attachment is a non-image file.
func (p *Prompt) HasDocuments() bool {
	for _, f := range p.Files {
		if !f.IsImage() {
			return true
		}
	}
	return false
}

// IsImage reports whether the attachment is an image.
func (f FileRef) IsImage() bool {
	return f.Type == FileKindImage || strings.HasPrefix(f.Type, "image/")
}
