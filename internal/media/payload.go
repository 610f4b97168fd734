package media

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/utafrali/catalogcore/pkg/errors"
)

// MaxPayloadBytes bounds a decoded inline image.
const MaxPayloadBytes = 10 << 20

// Payload is an image supplied by a caller: either inline bytes decoded
// from a data URI or base64 string, or a remote http(s) URL fetched at
// upload time. Build one with ParsePayload.
type Payload struct {
	url         string
	data        []byte
	contentType string
}

// URLPayload returns a payload fetched from rawURL at upload time.
func URLPayload(rawURL string) Payload {
	return Payload{url: rawURL}
}

// InlinePayload returns a payload carrying data directly.
func InlinePayload(data []byte, contentType string) Payload {
	return Payload{data: data, contentType: contentType}
}

// IsRemote reports whether the payload must be fetched.
func (p Payload) IsRemote() bool { return p.url != "" }

// URL returns the remote location of a remote payload.
func (p Payload) URL() string { return p.url }

// ContentType returns the detected type of an inline payload.
func (p Payload) ContentType() string { return p.contentType }

// Size returns the inline payload length.
func (p Payload) Size() int { return len(p.data) }

// ParsePayload decodes raw once into a Payload. Accepted forms are
// http(s) URLs, data URIs with base64 content, and bare base64. Inline
// content must be an image.
func ParsePayload(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, apperrors.InvalidInput("image payload is empty")
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return Payload{}, apperrors.InvalidInput("image url is malformed")
		}
		return URLPayload(u.String()), nil
	}

	encoded := raw
	if strings.HasPrefix(lower, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasSuffix(strings.ToLower(header), ";base64") {
			return Payload{}, apperrors.InvalidInput("image data uri must be base64 encoded")
		}
		encoded = body
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return Payload{}, apperrors.InvalidInput("image payload is not valid base64")
	}
	contentType, err := detectImage(data)
	if err != nil {
		return Payload{}, err
	}
	return InlinePayload(data, contentType), nil
}

// ParsePayloads decodes every entry of raws.
func ParsePayloads(raws []string) ([]Payload, error) {
	out := make([]Payload, 0, len(raws))
	for i, raw := range raws {
		p, err := ParsePayload(raw)
		if err != nil {
			return nil, apperrors.Wrap(err, fmt.Sprintf("image %d", i))
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// detectImage sniffs data and rejects anything that is not an image.
func detectImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.InvalidInput("image payload is empty")
	}
	if len(data) > MaxPayloadBytes {
		return "", apperrors.InvalidInput(fmt.Sprintf("image exceeds %d bytes", MaxPayloadBytes))
	}
	m := mimetype.Detect(data)
	if !strings.HasPrefix(m.String(), "image/") {
		return "", apperrors.InvalidInput(fmt.Sprintf("content type %q is not an image", m.String()))
	}
	return m.String(), nil
}
