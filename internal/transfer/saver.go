package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rungchat/internal/logging"
)

// Saver performs the "offer file to user" action. It returns where the file went.
type Saver interface {
	Offer(ctx context.Context, action SaveAction) (string, error)
}

// DirSaver writes artifacts into a download directory. Only the base name of
// the suggested filename is used, and an existing file is never overwritten:
// a numbered suffix is added instead.
type DirSaver struct {
	Dir string
}

// NewDirSaver creates a DirSaver for dir.
func NewDirSaver(dir string) *DirSaver {
	return &DirSaver{Dir: dir}
}

// Offer writes the artifact and returns its path.
func (s *DirSaver) Offer(ctx context.Context, action SaveAction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(action.Filename, `\`, "/")))
	if name == "/" || name == "." {
		name = FallbackFilename()
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.Dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}
		if _, err := f.Write(action.Data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", candidate, err)
		}
		logging.Transfer("saved %s (%d bytes, %s)", path, len(action.Data), action.MIMEType)
		return path, nil
	}
}
