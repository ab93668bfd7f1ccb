package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errInvalidCitation = errors.New("citation is not valid json")

// DocumentCitation is the citation shape produced by the knowledge service.
type DocumentCitation struct {
	DocumentID string `json:"document_id"`
	Chunk      string `json:"chunk,omitempty"`
}

// Citation is an opaque record supporting an assistant answer. Records that
// match DocumentCitation are recognised; anything else is kept verbatim.
type Citation struct {
	raw      json.RawMessage
	document *DocumentCitation
}

// NewCitation builds a citation from a raw JSON record.
func NewCitation(raw []byte) (Citation, error) {
	var c Citation
	if err := c.UnmarshalJSON(raw); err != nil {
		return Citation{}, err
	}
	return c, nil
}

// Document returns the recognised document citation, if any.
func (c Citation) Document() (DocumentCitation, bool) {
	if c.document == nil {
		return DocumentCitation{}, false
	}
	return *c.document, true
}

// Label is the display text: the document id when known, otherwise the
// compact JSON form of the whole record.
func (c Citation) Label() string {
	if c.document != nil {
		return c.document.DocumentID
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, c.raw); err != nil {
		return string(c.raw)
	}
	return buf.String()
}

func (c Citation) MarshalJSON() ([]byte, error) {
	if len(c.raw) == 0 {
		return []byte("null"), nil
	}
	return c.raw, nil
}

func (c *Citation) UnmarshalJSON(b []byte) error {
	if !json.Valid(b) {
		return errInvalidCitation
	}
	c.raw = append(json.RawMessage(nil), b...)
	c.document = matchDocumentCitation(b)
	return nil
}

// matchDocumentCitation matches objects carrying a non-null document_id.
// Non-string ids (numbers, nested values) are rendered as their JSON text.
func matchDocumentCitation(b []byte) *DocumentCitation {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	rawID, ok := fields["document_id"]
	if !ok || string(bytes.TrimSpace(rawID)) == "null" {
		return nil
	}
	doc := &DocumentCitation{}
	var id string
	if err := json.Unmarshal(rawID, &id); err == nil {
		doc.DocumentID = id
	} else {
		doc.DocumentID = strings.TrimSpace(string(rawID))
	}
	if rawChunk, ok := fields["chunk"]; ok {
		_ = json.Unmarshal(rawChunk, &doc.Chunk)
	}
	return doc
}
