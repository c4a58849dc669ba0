package resource

import (
	"fmt"
	"mime"
	"strings"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
)

const (
	DefaultMaxDocuments     = model.MaxDocumentsPerTask
	DefaultMaxDocumentBytes = 5 << 20
)

// DocumentPolicy is the client-side pre-flight check for task attachments. The server
// remains the authority.
type DocumentPolicy struct {
	MaxCount     int      `json:"maxCount"`
	MaxBytes     int64    `json:"maxBytes"`
	AllowedTypes []string `json:"allowedTypes"`
}

func DefaultDocumentPolicy() DocumentPolicy {
	return DocumentPolicy{
		MaxCount:     DefaultMaxDocuments,
		MaxBytes:     DefaultMaxDocumentBytes,
		AllowedTypes: []string{"application/pdf"},
	}
}

func (p DocumentPolicy) normalized() DocumentPolicy {
	d := DefaultDocumentPolicy()
	if p.MaxCount <= 0 {
		p.MaxCount = d.MaxCount
	}
	if p.MaxBytes <= 0 {
		p.MaxBytes = d.MaxBytes
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = d.AllowedTypes
	}
	return p
}

func (p DocumentPolicy) allows(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), mt) {
			return true
		}
	}
	return false
}

func (p DocumentPolicy) typeLabel() string {
	if len(p.AllowedTypes) == 1 && strings.EqualFold(p.AllowedTypes[0], "application/pdf") {
		return "PDF"
	}
	return strings.Join(p.AllowedTypes, ", ")
}

// Check validates uploads given how many documents the task keeps after removals.
func (p DocumentPolicy) Check(kept int, uploads []model.Upload) error {
	p = p.normalized()
	if kept < 0 {
		kept = 0
	}
	if kept+len(uploads) > p.MaxCount {
		return apperr.Validation("Maximum of %d documents allowed", p.MaxCount)
	}
	for _, up := range uploads {
		if strings.TrimSpace(up.Name) == "" {
			return apperr.Validation("Document name is required")
		}
		if !p.allows(up.ContentType) {
			return apperr.Validation("Only %s files are allowed: %s", p.typeLabel(), up.Name)
		}
		if up.Size > p.MaxBytes {
			return apperr.Validation("%s exceeds the %s limit", up.Name, formatBytes(p.MaxBytes))
		}
	}
	return nil
}

// keptDocuments counts the cached task's documents that survive removed.
func keptDocuments(cached *model.Task, removed []string) int {
	if cached == nil {
		return 0
	}
	drop := make(map[string]bool, len(removed))
	for _, id := range removed {
		drop[strings.TrimSpace(id)] = true
	}
	n := 0
	for _, d := range cached.Documents {
		if !drop[d.ID] {
			n++
		}
	}
	return n
}

func formatBytes(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n >= 1<<10 && n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
