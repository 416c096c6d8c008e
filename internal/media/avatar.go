// Package media handles the avatar a creator picks during signup: a local
// data-URI preview first, an object-storage upload on profile submission.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ayush/tipfinity/internal/api"
)

// MaxAvatarBytes bounds a selected avatar file.
const MaxAvatarBytes = 5 << 20

// Avatar is a selected image held in memory until submission.
type Avatar struct {
	ContentType string
	Data        []byte
}

// DataURI renders the avatar for preview.
func (a *Avatar) DataURI() string {
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Extension is a file extension for the avatar's content type.
func (a *Avatar) Extension() string {
	switch a.ContentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

// ReadAvatar reads an image of at most max bytes. When contentType is empty
// or generic it is sniffed from the data.
func ReadAvatar(ctx context.Context, r io.Reader, contentType string, max int64) (*Avatar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) == 0 {
		return nil, api.Invalid("avatar", "file is empty")
	}
	if int64(len(data)) > max {
		return nil, api.Invalid("avatar", fmt.Sprintf("file exceeds %d bytes", max))
	}

	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, api.Invalid("avatar", "file is not an image")
	}
	return &Avatar{ContentType: ct, Data: data}, nil
}
