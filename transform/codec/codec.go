// Package codec converts between self-describing data URIs and raw
// base64 payloads.
package codec

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
)

// DefaultMimeType is assumed when a payload carries no mime type.
const DefaultMimeType = "image/jpeg"

// ErrMalformed is returned by DecodeStrict for non-conforming input.
var ErrMalformed = errors.New("codec: malformed data URI")

var dataURIPattern = regexp.MustCompile(`(?s)^data:([^;]+);base64,(.+)$`)

// Image is an encoded payload together with its mime type.
type Image struct {
	// Data 为 base64 编码的图像内容
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// DataURI formats the image as a data URI.
func (i Image) DataURI() string {
	return Encode(i.Data, i.MimeType)
}

// Bytes decodes the base64 payload.
func (i Image) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Data)
}

// FromBytes encodes raw bytes into an Image.
func FromBytes(b []byte, mimeType string) Image {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return Image{Data: base64.StdEncoding.EncodeToString(b), MimeType: mimeType}
}

// Decode parses a data URI. Input that does not match is treated as a raw
// payload with DefaultMimeType.
func Decode(s string) Image {
	if img, err := DecodeStrict(s); err == nil {
		return img
	}
	return Image{Data: s, MimeType: DefaultMimeType}
}

// DecodeStrict parses a data URI and fails on anything else.
func DecodeStrict(s string) (Image, error) {
	m := dataURIPattern.FindStringSubmatch(s)
	if m == nil {
		return Image{}, ErrMalformed
	}
	return Image{Data: m[2], MimeType: m[1]}, nil
}

// Encode formats payload and mime type as a data URI.
func Encode(data, mimeType string) string {
	return "data:" + mimeType + ";base64," + data
}

// IsDataURI reports whether s looks like a data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// IsURL reports whether s is an absolute http(s) URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
