// ABOUTME: Request body encoders for JSON and multipart form submissions.
// ABOUTME: Multipart bodies carry their own boundary in the content type.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/2389-research/backstage/internal/models"
)

// payload is an encoded request body and the content type it needs.
type payload struct {
	contentType string
	body        io.Reader
}

func jsonPayload(v any) (*payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return &payload{contentType: "application/json", body: bytes.NewReader(data)}, nil
}

// form accumulates multipart fields in insertion order.
type form struct {
	fields [][2]string
	files  []formFile
}

type formFile struct {
	field  string
	upload *models.Upload
}

func (f *form) set(name, value string) {
	f.fields = append(f.fields, [2]string{name, value})
}

func (f *form) attach(name string, u *models.Upload) {
	if u != nil {
		f.files = append(f.files, formFile{field: name, upload: u})
	}
}

func (f *form) payload() (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, kv := range f.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", kv[0], err)
		}
	}

	for _, file := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.upload.Name))
		ct := file.upload.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create part %s: %w", file.field, err)
		}
		if file.upload.Body != nil {
			if _, err := io.Copy(part, file.upload.Body); err != nil {
				return nil, fmt.Errorf("failed to copy %s: %w", file.upload.Name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &payload{contentType: w.FormDataContentType(), body: &buf}, nil
}
