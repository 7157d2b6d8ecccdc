// Package mimetypes classifies the content types clients are allowed to
// share as attachments.
package mimetypes

import "mime"

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"
	TextCSS   MIME = "text/css"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationXML  MIME = "application/xml"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
)

// shareable is the allow-list for attachment payloads. Anything sniffed
// outside this set is refused before it reaches the store.
var shareable = map[MIME]struct{}{
	TextPlain:       {},
	ApplicationPDF:  {},
	ApplicationJSON: {},
	ImagePNG:        {},
	ImageJPEG:       {},
	ImageGIF:        {},
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Shareable reports whether a sniffed content type may be shared in chat.
func Shareable(detected string) bool {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return false
	}
	_, ok := shareable[MIME(mt)]
	return ok
}
