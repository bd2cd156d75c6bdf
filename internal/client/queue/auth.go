package queue

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// CookieFile serves the contents of a Netscape cookies export as the auth
// context. A missing file yields an empty context.
type CookieFile struct {
	Path string
}

func (f CookieFile) AuthContext(_ context.Context) (string, error) {
	if f.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
