package utils

import (
	"mime/multipart"
	"net/http"
)

// SniffContentType prefers the declared part header and falls back to
// content sniffing.
func SniffContentType(h *multipart.FileHeader, head []byte) string {
	if ct := h.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(head)
}

func ValidateFileHeader(h *multipart.FileHeader, maxBytes int64) error {
	if h == nil {
		return Validationf("file missing")
	}
	if h.Size == 0 {
		return Validationf("file is empty")
	}
	if maxBytes > 0 && h.Size > maxBytes {
		return ErrTooLarge
	}
	return nil
}
