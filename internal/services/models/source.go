package models

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cozy-creator/audio-adapters/internal/utils/pathutil"
)

type SourceType string

const (
	SourceTypeHuggingface SourceType = "huggingface"
	SourceTypeFile        SourceType = "file"
	SourceTypeDirect      SourceType = "direct"
)

var (
	ErrEmptySource       = errors.New("empty model source")
	ErrUnsupportedSource = errors.New("unsupported model source")
)

var repoIDPattern = regexp.MustCompile(`^[A-Za-z0-9][\w.-]*/[\w.-]+$`)

type ModelSource struct {
	Type     SourceType
	Location string
	Original string
}

// ParseModelSource accepts "hf:org/name", "file:/path", http(s) URLs, an
// existing local path or a bare "org/name" repo id. A local path that
// exists wins over a repo id of the same spelling.
func ParseModelSource(source string) (*ModelSource, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptySource
	}

	ms := &ModelSource{
		Original: source,
	}

	switch {
	case strings.HasPrefix(source, "hf:"):
		ms.Type = SourceTypeHuggingface
		ms.Location = strings.TrimPrefix(source, "hf:")
		if !repoIDPattern.MatchString(ms.Location) {
			return nil, fmt.Errorf("%w: invalid repo id %q", ErrUnsupportedSource, ms.Location)
		}
	case strings.HasPrefix(source, "file:"):
		path, err := pathutil.ExpandPath(strings.TrimPrefix(source, "file:"))
		if err != nil {
			return nil, err
		}
		ms.Type = SourceTypeFile
		ms.Location = path
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		ms.Type = SourceTypeDirect
		ms.Location = source
	case isLocalPath(source):
		path, err := pathutil.ExpandPath(source)
		if err != nil {
			return nil, err
		}
		ms.Type = SourceTypeFile
		ms.Location = path
	case repoIDPattern.MatchString(source):
		ms.Type = SourceTypeHuggingface
		ms.Location = source
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}

	return ms, nil
}

func isLocalPath(source string) bool {
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, "./") ||
		strings.HasPrefix(source, "../") || strings.HasPrefix(source, "~") {
		return true
	}
	_, err := os.Stat(source)
	return err == nil
}
