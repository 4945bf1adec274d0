package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Content types produced by Encode.
const (
	ContentTypeJSON = "application/json"
)

// Payload is an encoded request body.
type Payload struct {
	Body        []byte
	ContentType string
}

// EncodeJSON renders req as a JSON document.
func EncodeJSON(req Request) (Payload, error) {
	if req.Answers == nil {
		req.Answers = []Answer{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Payload{}, fmt.Errorf("submission: encode json: %w", err)
	}
	return Payload{Body: body, ContentType: ContentTypeJSON}, nil
}

// EncodeMultipart renders req as multipart/form-data: a "formId" part, an
// "answers" part holding the JSON answer array, and one file part per
// payload named after its qualified field name.
func EncodeMultipart(req Request, files []FilePayload) (Payload, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("formId", req.FormID); err != nil {
		return Payload{}, fmt.Errorf("submission: write formId: %w", err)
	}

	answers := req.Answers
	if answers == nil {
		answers = []Answer{}
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return Payload{}, fmt.Errorf("submission: encode answers: %w", err)
	}
	if err := writer.WriteField("answers", string(encoded)); err != nil {
		return Payload{}, fmt.Errorf("submission: write answers: %w", err)
	}

	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.QualifiedName), escapeQuotes(file.File.DisplayName())))
		contentType := strings.TrimSpace(file.File.ContentType)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return Payload{}, fmt.Errorf("submission: create part %s: %w", file.QualifiedName, err)
		}
		if _, err := part.Write(file.File.Data); err != nil {
			return Payload{}, fmt.Errorf("submission: write part %s: %w", file.QualifiedName, err)
		}
	}

	if err := writer.Close(); err != nil {
		return Payload{}, fmt.Errorf("submission: close multipart: %w", err)
	}
	return Payload{Body: buf.Bytes(), ContentType: writer.FormDataContentType()}, nil
}

// Encode picks multipart when files are attached and JSON otherwise.
func Encode(req Request, files []FilePayload) (Payload, error) {
	if len(files) > 0 {
		return EncodeMultipart(req, files)
	}
	return EncodeJSON(req)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
