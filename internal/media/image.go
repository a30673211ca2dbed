package media

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"postboard/internal/models"

	_ "golang.org/x/image/webp"
)

const sniffLen = 512

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func detectContentType(head []byte) string {
	return http.DetectContentType(head)
}

// DetectImage checks that r holds a decodable JPEG, PNG, GIF or WebP image
// and returns its content type and canonical file extension.
func DetectImage(r io.Reader) (contentType, ext string, err error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", models.NewValidationError("failed to read upload")
	}
	head = head[:n]

	contentType = detectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", models.NewValidationError("Only JPEG, PNG, GIF or WebP images are allowed")
	}

	if _, _, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return "", "", models.NewValidationError("Uploaded image is corrupt")
	}
	return contentType, ext, nil
}
