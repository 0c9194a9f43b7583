package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

var ErrDownloadStalled = errors.New("download stalled for too long")

func newDownloadClient() *http.Client {
	return &http.Client{
		Timeout: 0, // No total timeout
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 60 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   60 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       60 * time.Second,
		},
	}
}

// partialPath is where destPath is staged while downloading.
func (r *Resolver) partialPath(destPath string) string {
	dir := r.tempDir
	if dir == "" {
		dir = filepath.Dir(destPath)
	}
	return filepath.Join(dir, filepath.Base(destPath)+".tmp")
}

// downloadWithProgress fetches url into destPath through a partial file,
// resuming it and retrying transient failures with backoff.
func (r *Resolver) downloadWithProgress(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpPath := r.partialPath(destPath)
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = r.maxElapsed
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := r.downloadWithResume(ctx, url, destPath, tmpPath)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			r.logger.Warn("Download attempt failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func (r *Resolver) downloadWithResume(ctx context.Context, url, destPath, tmpPath string) error {
	// check for partial download
	var initialSize int64
	if info, err := os.Stat(tmpPath); err == nil {
		initialSize = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if initialSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", initialSize))
	}
	if token := r.authTokenFor(req); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// handle resume status
	var totalSize int64
	flag := os.O_CREATE | os.O_WRONLY
	switch {
	case initialSize > 0 && resp.StatusCode == http.StatusPartialContent:
		totalSize = initialSize + resp.ContentLength
		flag |= os.O_APPEND
	case resp.StatusCode == http.StatusOK:
		if initialSize > 0 {
			r.logger.Warn("Server doesn't support resume, starting download from beginning")
			initialSize = 0
		}
		totalSize = resp.ContentLength
		flag |= os.O_TRUNC
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("download failed with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		totalSize = 0
	}

	f, err := os.OpenFile(tmpPath, flag, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open file: %w", err))
	}
	defer f.Close()

	progress := mpb.NewWithContext(ctx,
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
		mpb.WithOutput(r.progressOut),
	)

	bar := progress.AddBar(totalSize,
		mpb.PrependDecorators(
			decor.Name(filepath.Base(destPath), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)
	if initialSize > 0 {
		bar.SetCurrent(initialSize)
	}

	downloaded, copyErr := copyWithStallCheck(f, bar.ProxyReader(resp.Body), initialSize)
	// Completes the bar on unknown length or a short read so Wait returns.
	bar.SetTotal(downloaded, true)
	progress.Wait()

	if copyErr != nil {
		return copyErr
	}

	// verify size
	if totalSize > 0 && downloaded != totalSize {
		return fmt.Errorf("download size mismatch: expected %d, got %d", totalSize, downloaded)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := verifyFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to verify file: %w", err)
	}

	if err := moveFile(tmpPath, destPath); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to move file: %w", err))
	}

	return nil
}

// moveFile renames src to dst, copying when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

// copyWithStallCheck copies src to dst and fails when no data arrives for
// two minutes.
func copyWithStallCheck(dst io.Writer, src io.Reader, offset int64) (int64, error) {
	downloaded := offset
	lastUpdate := time.Now()
	buf := make([]byte, 32*1024)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return downloaded, backoff.Permanent(fmt.Errorf("write failed: %w", werr))
			}
			downloaded += int64(n)
			lastUpdate = time.Now()
		} else if time.Since(lastUpdate) > 2*time.Minute {
			return downloaded, ErrDownloadStalled
		}

		if err == io.EOF {
			return downloaded, nil
		}
		if err != nil {
			return downloaded, fmt.Errorf("read failed: %w", err)
		}
	}
}

func verifyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}
