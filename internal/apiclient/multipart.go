package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"taskdash/internal/model"
)

const documentsField = "documents"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeTaskForm builds the multipart body for POST /tasks and PUT /tasks/:id.
// Callers validate the document policy before this runs.
func encodeTaskForm(in model.TaskInput, update bool) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"title", strings.TrimSpace(in.Title)},
		{"description", in.Description},
		{"dueDate", formatDate(in.DueDate)},
		{"priority", string(in.Priority)},
		{"status", string(in.Status)},
		{"assignedTo", strings.TrimSpace(in.AssignedTo)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if update && len(in.RemovedDocumentIDs) > 0 {
		b, err := json.Marshal(in.RemovedDocumentIDs)
		if err != nil {
			return nil, "", err
		}
		if err := w.WriteField("removedFiles", string(b)); err != nil {
			return nil, "", err
		}
	}
	for _, up := range in.Documents {
		if err := writeUpload(w, up); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeUpload(w *multipart.Writer, up model.Upload) error {
	if up.Open == nil {
		return fmt.Errorf("document %q has no content", up.Name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, documentsField, quoteEscaper.Replace(up.Name)))
	h.Set("Content-Type", up.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	rc, err := up.Open()
	if err != nil {
		return fmt.Errorf("open document %q: %w", up.Name, err)
	}
	defer rc.Close()
	_, err = io.Copy(part, rc)
	return err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
