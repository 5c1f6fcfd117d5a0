package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ContentType tags the variant carried by a Content value.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentResource ContentType = "resource"
)

// Content is MCP's tagged content union: tool results, prompt messages,
// and resource reads all carry one or more Content values.
type Content struct {
	Type ContentType

	// Text is set when Type == ContentText.
	Text string

	// Data holds raw bytes for ContentImage/ContentAudio, encoded as
	// base64 on the wire.
	Data     []byte
	MimeType string

	// ResourceURI and ResourceText/ResourceMimeType are set when
	// Type == ContentResource (an embedded resource reference).
	ResourceURI      string
	ResourceText     string
	ResourceMimeType string
}

// NewTextContent builds a text Content value.
func NewTextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// NewImageContent builds an image Content value.
func NewImageContent(data []byte, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

// NewResourceContent builds an embedded-resource Content value.
func NewResourceContent(uri, text, mimeType string) Content {
	return Content{Type: ContentResource, ResourceURI: uri, ResourceText: text, ResourceMimeType: mimeType}
}

type contentWire struct {
	Type     ContentType     `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Resource *resourceWire   `json:"resource,omitempty"`
}

type resourceWire struct {
	URI      string `json:"uri"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// MarshalJSON renders Content in MCP's {"type": "...", ...} shape.
func (c Content) MarshalJSON() ([]byte, error) {
	w := contentWire{Type: c.Type}
	switch c.Type {
	case ContentText:
		w.Text = c.Text
	case ContentImage, ContentAudio:
		w.Data = base64.StdEncoding.EncodeToString(c.Data)
		w.MimeType = c.MimeType
	case ContentResource:
		w.Resource = &resourceWire{URI: c.ResourceURI, Text: c.ResourceText, MimeType: c.ResourceMimeType}
	default:
		return nil, fmt.Errorf("protocol: unknown content type %q", c.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses MCP's {"type": "...", ...} content shape.
func (c *Content) UnmarshalJSON(data []byte) error {
	var w contentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case ContentText:
		*c = Content{Type: ContentText, Text: w.Text}
	case ContentImage, ContentAudio:
		raw, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return fmt.Errorf("protocol: decode content data: %w", err)
		}
		*c = Content{Type: w.Type, Data: raw, MimeType: w.MimeType}
	case ContentResource:
		if w.Resource == nil {
			return fmt.Errorf("protocol: resource content missing resource field")
		}
		*c = Content{Type: ContentResource, ResourceURI: w.Resource.URI, ResourceText: w.Resource.Text, ResourceMimeType: w.Resource.MimeType}
	default:
		return fmt.Errorf("protocol: unknown content type %q", w.Type)
	}
	return nil
}
