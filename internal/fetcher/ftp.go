package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout    time.Duration
	MaxRetries int
}

// FTPFetcher downloads files from anonymous FTP servers such as DATASUS.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL splits an ftp:// URL into host:port and path.
func parseFTPURL(rawURL string) (host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.New("empty path in ftp url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

// ftpBody closes the transfer and the control connection together.
type ftpBody struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Read(p []byte) (int, error) { return b.resp.Read(p) }

func (b *ftpBody) Close() error {
	respErr := b.resp.Close()
	quitErr := b.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	return eris.Wrap(quitErr, "quit ftp connection")
}

// Download logs in anonymously and retrieves the file. The caller closes the reader.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	var body io.ReadCloser
	err = retry(ctx, retryPolicy{maxAttempts: f.opts.MaxRetries}, "ftp retr "+rawURL, func(ctx context.Context) error {
		zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

		conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return eris.Wrap(err, "ftp dial")
		}
		if err := conn.Login("anonymous", "anonymous@"); err != nil {
			_ = conn.Quit()
			return eris.Wrap(err, "ftp login")
		}
		resp, err := conn.Retr(path)
		if err != nil {
			_ = conn.Quit()
			return eris.Wrap(err, "ftp retrieve")
		}
		body = &ftpBody{resp: resp, conn: conn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DownloadToFile retrieves rawURL into dest and returns the bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	return writeTo(dest, rc)
}
