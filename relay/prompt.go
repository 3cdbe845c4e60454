package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/chatrelay/pkg/extract"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/models"
)

// DefaultFilePrompt replaces an empty message when files are attached.
const DefaultFilePrompt = "Please analyze these files."

// maxInlineImage bounds images read from the upload store for data URLs.
const maxInlineImage = 20 << 20

// buildChatRequest turns a validated prompt into the provider-agnostic
// request, resolving attachments into content blocks.
func (r *Relay) buildChatRequest(ctx context.Context, prompt *llm.Prompt, model string, caps models.Capabilities, stream bool) *llm.ChatRequest {
	text := strings.TrimSpace(prompt.Message)
	if text == "" && len(prompt.Files) > 0 {
		text = DefaultFilePrompt
	}

	blocks := []llm.ContentBlock{{Type: "text", Text: text}}
	for _, f := range prompt.Files {
		blocks = append(blocks, r.resolveFile(ctx, f, caps))
	}

	maxTokens := r.catalog.ClampMaxTokens(model, prompt.MaxTokens)
	temperature := *r.config.Temperature

	return &llm.ChatRequest{
		Model:       model,
		System:      r.config.SystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: blocks}},
		Stream:      stream,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}
}

func (r *Relay) resolveFile(ctx context.Context, f llm.FileRef, caps models.Capabilities) llm.ContentBlock {
	if f.IsImage() {
		return r.resolveImage(f, caps)
	}
	return r.resolveDocument(ctx, f, caps)
}

func (r *Relay) resolveImage(f llm.FileRef, caps models.Capabilities) llm.ContentBlock {
	if !caps.Vision {
		return textBlock(fmt.Sprintf("[Image: %s. %s cannot view images; choose a vision model to analyze it.]", f.Name, caps.Name))
	}

	url, err := r.imageURL(f)
	if err != nil {
		r.logger.Warn("image attachment unavailable", "file", f.Name, "error", err)
		return textBlock(fmt.Sprintf("[Image: %s could not be loaded.]", f.Name))
	}

	return llm.ContentBlock{Type: "image", ImageURL: url, MediaType: imageMediaType(f)}
}

// imageURL returns a URL the provider can fetch or decode: an inline data
// URL, a remote URL, or a stored upload encoded as a data URL.
func (r *Relay) imageURL(f llm.FileRef) (string, error) {
	switch {
	case strings.HasPrefix(f.Data, "data:"):
		return f.Data, nil
	case f.Data != "":
		return "data:" + imageMediaType(f) + ";base64," + f.Data, nil
	}

	ref := f.Path
	if ref == "" {
		ref = f.URL
	}
	if ref == "" {
		return "", errors.New("attachment has no content")
	}

	if r.config.Uploads == nil || !isUploadRef(ref) {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			return ref, nil
		}
		return "", fmt.Errorf("unknown image reference %q", ref)
	}

	rc, err := r.config.Uploads.Open(ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxInlineImage))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	return "data:" + imageMediaType(f) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (r *Relay) resolveDocument(ctx context.Context, f llm.FileRef, caps models.Capabilities) llm.ContentBlock {
	ref := f.Path
	if ref == "" {
		ref = f.URL
	}
	if r.config.Uploads == nil || ref == "" {
		return textBlock("Received file: " + f.Name)
	}

	local, err := r.config.Uploads.Resolve(ref)
	if err != nil {
		r.logger.Warn("document attachment unavailable", "file", f.Name, "error", err)
		return textBlock(fmt.Sprintf("[Document: %s could not be loaded.]", f.Name))
	}

	text, err := r.extractor.Extract(ctx, local, f.Type)
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		return textBlock("Received file: " + f.Name)
	case err != nil:
		r.logger.Warn("document extraction failed", "file", f.Name, "error", err)
		return textBlock(fmt.Sprintf("[Document: %s could not be read.]", f.Name))
	}

	return textBlock("Document: " + f.Name + "\n" + extract.Truncate(text, caps.DocumentLimit()))
}

func textBlock(text string) llm.ContentBlock {
	return llm.ContentBlock{Type: "text", Text: text}
}

func isUploadRef(ref string) bool {
	return strings.Contains(ref, "/uploads/") || !strings.Contains(ref, "://")
}

func imageMediaType(f llm.FileRef) string {
	if strings.HasPrefix(f.Type, "image/") {
		return f.Type
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/png"
}
