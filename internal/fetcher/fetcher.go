// Package fetcher resolves source handles (local paths, file://, http(s):// and
// ftp:// URIs) to local files and reads the delimited-text, XLSX and ZIP
// formats the ingestion stage consumes.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Source is an opaque source handle: a local path or a file://, http(s):// or
// ftp:// URI.
type Source string

func (s Source) String() string { return string(s) }

// Options configures remote source retrieval.
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	TempDir       string
}

// Opener stages sources as local files.
type Opener struct {
	opts Options
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewOpener creates an Opener. Zero option values fall back to defaults.
func NewOpener(opts Options) *Opener {
	return &Opener{
		opts: opts,
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:     opts.UserAgent,
			Timeout:       opts.Timeout,
			MaxRetries:    opts.MaxRetries,
			RatePerSecond: opts.RatePerSecond,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout, MaxRetries: opts.MaxRetries}),
	}
}

// Staged is a source available on the local filesystem.
type Staged struct {
	Path string
	// Ext is the lowercased extension of the original handle, including the dot.
	Ext     string
	cleanup func()
}

// Close removes any temporary files created while staging.
func (s *Staged) Close() error {
	if s != nil && s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return nil
}

// Ext returns the lowercased file extension of a source handle, ignoring any URL query.
func Ext(src Source) string {
	if u, err := url.Parse(string(src)); err == nil && len(u.Scheme) > 1 {
		return strings.ToLower(path.Ext(u.Path))
	}
	return strings.ToLower(filepath.Ext(string(src)))
}

// Stage resolves src to a local file. Remote sources are downloaded into a
// fresh temporary directory that Close removes.
func (o *Opener) Stage(ctx context.Context, handle Source) (*Staged, error) {
	src := strings.TrimSpace(string(handle))
	if src == "" {
		return nil, eris.New("fetcher: empty source")
	}

	scheme := ""
	u, err := url.Parse(src)
	// Single-letter schemes are Windows drive letters, not URIs.
	if err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}

	switch scheme {
	case "":
		return stageLocal(src)
	case "file":
		return stageLocal(u.Path)
	case "http", "https", "ftp":
		return o.stageRemote(ctx, src, u, scheme)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", scheme, src)
	}
}

func stageLocal(p string) (*Staged, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: stat %s", p)
	}
	if info.IsDir() {
		return nil, eris.Errorf("fetcher: %s is a directory", p)
	}
	return &Staged{Path: p, Ext: strings.ToLower(filepath.Ext(p))}, nil
}

func (o *Opener) stageRemote(ctx context.Context, src string, u *url.URL, scheme string) (*Staged, error) {
	dir, err := os.MkdirTemp(o.opts.TempDir, "source-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("source", src))
	log.Info("fetcher: downloading source")

	var n int64
	switch scheme {
	case "ftp":
		n, err = o.ftp.DownloadToFile(ctx, src, dest)
	default:
		n, err = o.http.DownloadToFile(ctx, src, dest)
	}
	if err != nil {
		cleanup()
		return nil, eris.Wrapf(err, "fetcher: download %s", src)
	}

	log.Debug("fetcher: source staged", zap.String("path", dest), zap.Int64("bytes", n))
	return &Staged{Path: dest, Ext: strings.ToLower(path.Ext(u.Path)), cleanup: cleanup}, nil
}

// writeTo copies r into a new file at dest.
func writeTo(dest string, r io.Reader) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(f, r)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
