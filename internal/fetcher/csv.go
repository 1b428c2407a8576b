package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures delimited-text parsing.
type CSVOptions struct {
	// Delimiter zero picks ';' or ',' from the leading lines.
	Delimiter rune
	// Charset is any WHATWG encoding label ("iso-8859-1", "windows-1252").
	// Empty means UTF-8.
	Charset   string
}

// decodeReader wraps r with a charset decoder and strips a UTF-8 BOM.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	charset = strings.TrimSpace(strings.ToLower(charset))
	if charset != "" && charset != "utf-8" && charset != "utf8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unknown charset %q", charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br, nil
}

// sniffDelimiter chooses between ';' and ',' from the header line, falling
// back to the first data line on a tie. A header with neither is a single
// column, read with ';' so a decimal comma stays inside its cell.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	lines := bytes.SplitN(head, []byte{'\n'}, 3)

	semi, comma := bytes.Count(lines[0], []byte{';'}), bytes.Count(lines[0], []byte{','})
	switch {
	case semi > comma:
		return ';'
	case comma > semi:
		return ','
	case semi == 0:
		return ';'
	}
	if len(lines) > 1 && bytes.Count(lines[1], []byte{','}) > bytes.Count(lines[1], []byte{';'}) {
		return ','
	}
	return ';'
}

// StreamCSV reads delimited text and sends rows, header included, to a
// channel. Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		dr, err := decodeReader(r, opts.Charset)
		if err != nil {
			errCh <- err
			return
		}
		br := bufio.NewReader(dr)

		delim := opts.Delimiter
		if delim == 0 {
			delim = sniffDelimiter(br)
		}

		reader := csv.NewReader(br)
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = false

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads all rows of delimited text. The first row is returned as the header.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	t := &Table{}
	first := true
	for row := range rowCh {
		if first {
			t.Header = trimAll(row)
			first = false
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return t, nil
}
