package storage

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is served for extensions outside the allow-list.
const DefaultContentType = "application/octet-stream"

var extToMIME = map[string]string{
	"png":  "image/png",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"webm": "video/webm",
}

var mimeToExt = map[string]string{
	"image/png":  "png",
	"image/gif":  "gif",
	"video/mp4":  "mp4",
	"video/webm": "webm",
}

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

// ContentTypeFor maps a stored filename to its content type.
func ContentTypeFor(name string) string {
	if ct, ok := extToMIME[extOf(name)]; ok {
		return ct
	}
	return DefaultContentType
}

// AllowedExt reports whether ext (without dot) is an accepted upload format.
func AllowedExt(ext string) bool {
	_, ok := extToMIME[strings.ToLower(ext)]
	return ok
}

// ResolveExt picks the stored extension for an upload. The client filename's
// extension wins when allowed; otherwise the declared content type is used.
// Content is sniffed only when the filename carries no extension at all.
// The returned reader replays any sniffed bytes. ok is false when the format
// is not accepted.
func ResolveExt(filename, contentType string, r io.Reader) (ext string, body io.Reader, ok bool) {
	nameExt := extOf(filename)
	if AllowedExt(nameExt) {
		return nameExt, r, true
	}
	if ext, found := mimeToExt[baseMIME(contentType)]; found {
		return ext, r, true
	}
	if nameExt != "" || r == nil {
		return "", r, false
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", r, false
	}
	head = head[:n]
	body = io.MultiReader(bytes.NewReader(head), r)
	if ext, found := mimeToExt[baseMIME(mimetype.Detect(head).String())]; found {
		return ext, body, true
	}
	return "", body, false
}

func extOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func baseMIME(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
