package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cozy-creator/audio-adapters/internal/utils/hashutil"
	"github.com/cozy-creator/audio-adapters/internal/utils/pathutil"

	"github.com/cozy-creator/hf-hub/hub"
	"github.com/vbauerster/mpb/v7"
	"go.uber.org/zap"
)

const DefaultHubEndpoint = "https://huggingface.co"

var ErrModelNotFound = errors.New("model not found")

var unsafeNameChars = regexp.MustCompile(`[^\w.-]+`)

// Resolver turns a ModelSource into a local path the runtime can load from.
// Hugging Face repos and direct downloads are cached under the models dir.
type Resolver struct {
	modelsDir   string
	tempDir     string
	hubEndpoint string
	httpClient  *http.Client
	hfToken     string
	progressOut io.Writer
	maxElapsed  time.Duration
	logger      *zap.Logger
}

type ResolverOption func(*Resolver)

func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithHFToken authenticates Hugging Face downloads.
func WithHFToken(token string) ResolverOption {
	return func(r *Resolver) {
		r.hfToken = token
	}
}

// WithProgressOutput sets where download progress bars are drawn.
func WithProgressOutput(w io.Writer) ResolverOption {
	return func(r *Resolver) {
		r.progressOut = w
	}
}

// WithHubEndpoint points Hugging Face downloads at a mirror.
func WithHubEndpoint(endpoint string) ResolverOption {
	return func(r *Resolver) {
		if endpoint != "" {
			r.hubEndpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithTempDir stages partial direct downloads outside the models dir.
func WithTempDir(dir string) ResolverOption {
	return func(r *Resolver) {
		r.tempDir = dir
	}
}

// WithMaxElapsed bounds the total time spent retrying one download.
func WithMaxElapsed(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.maxElapsed = d
	}
}

func NewResolver(modelsDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		modelsDir:   modelsDir,
		hubEndpoint: DefaultHubEndpoint,
		httpClient:  newDownloadClient(),
		progressOut: os.Stderr,
		maxElapsed:  5 * time.Minute,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Resolver) Resolve(ctx context.Context, source *ModelSource) (string, error) {
	switch source.Type {
	case SourceTypeFile:
		return r.resolveFile(source.Location)
	case SourceTypeHuggingface:
		return r.resolveHuggingFace(ctx, source.Location)
	case SourceTypeDirect:
		return r.resolveDirect(ctx, source)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, source.Type)
	}
}

func (r *Resolver) resolveFile(location string) (string, error) {
	if !pathutil.Exists(location) {
		return "", fmt.Errorf("%w: %s does not exist", ErrModelNotFound, location)
	}
	return location, nil
}

func (r *Resolver) resolveHuggingFace(ctx context.Context, repoID string) (string, error) {
	if snapshot, ok := r.snapshotPath(repoID); ok {
		r.logger.Debug("Using cached snapshot", zap.String("repo_id", repoID), zap.String("path", snapshot))
		return snapshot, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.logger.Info("Downloading from HuggingFace", zap.String("repo_id", repoID), zap.String("endpoint", r.hubEndpoint))

	if err := os.MkdirAll(r.modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	progress := mpb.NewWithContext(progressCtx, mpb.WithWidth(60), mpb.WithOutput(r.progressOut))

	client := hub.NewClient(r.hubEndpoint, r.hfToken, r.modelsDir)
	client.Progress = progress

	_, err := client.Download(&hub.DownloadParams{
		Repo: &hub.Repo{Id: repoID, Type: hub.ModelRepoType},
	})
	if err != nil {
		// A failed file leaves its bar open; cancelling aborts it so Wait returns.
		cancel()
	}
	progress.Wait()

	if err != nil {
		return "", fmt.Errorf("failed to download model from HuggingFace: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	snapshot, ok := r.snapshotPath(repoID)
	if !ok {
		return "", fmt.Errorf("%w: no snapshot for %s after download", ErrModelNotFound, repoID)
	}
	return snapshot, nil
}

// snapshotPath returns the snapshot that refs/main points to, if present.
func (r *Resolver) snapshotPath(repoID string) (string, bool) {
	storageFolder := filepath.Join(r.modelsDir, repoFolderName(repoID, "model"))

	commitHash, err := os.ReadFile(filepath.Join(storageFolder, "refs", "main"))
	if err != nil {
		return "", false
	}

	snapshot := filepath.Join(storageFolder, "snapshots", strings.TrimSpace(string(commitHash)))
	if !pathutil.Exists(snapshot) {
		return "", false
	}
	return snapshot, true
}

func (r *Resolver) resolveDirect(ctx context.Context, source *ModelSource) (string, error) {
	dest := r.cachePath(source)
	if pathutil.Exists(dest) {
		return dest, nil
	}

	r.logger.Info("Downloading from direct URL", zap.String("url", source.Location), zap.String("dest", dest))
	if err := r.downloadWithProgress(ctx, source.Location, dest); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", source.Location, err)
	}
	return dest, nil
}

// cachePath names a direct download after the URL's base name plus a short
// hash of the full URL.
func (r *Resolver) cachePath(source *ModelSource) string {
	name := "model"
	if u, err := url.Parse(source.Location); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	name = unsafeNameChars.ReplaceAllString(name, "-")

	return filepath.Join(r.modelsDir, fmt.Sprintf("%s--%s", name, hashutil.ShortHash(source.Location, 8)))
}

func (r *Resolver) authTokenFor(req *http.Request) string {
	host := req.URL.Hostname()
	if host == "huggingface.co" || strings.HasSuffix(host, ".huggingface.co") {
		return r.hfToken
	}
	return ""
}

// converts "username/repo" to "models--username--repo"
func repoFolderName(repoID string, repoType string) string {
	repoParts := strings.Split(repoID, "/")
	parts := append([]string{repoType + "s"}, repoParts...)
	return strings.Join(parts, "--")
}
