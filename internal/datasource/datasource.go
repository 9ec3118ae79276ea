// Package datasource opens the byte streams behind line-oriented pipeline
// sources. A location is either a local path or an http(s) URL.
package datasource

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"tableload/internal/datasource/file"
	"tableload/internal/datasource/httpds"
	"tableload/internal/pipeline"
)

// MaxLineSize bounds a single ndjson line.
const MaxLineSize = 16 << 20

// Opener yields a fresh reader on every call.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Resolve returns the opener for loc. URLs with an http or https scheme are
// fetched through c (a default client when nil); anything else is a file.
func Resolve(loc string, c *httpds.Client) Opener {
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		if c == nil {
			c = httpds.NewClient(httpds.Config{})
		}
		return c.Remote(loc)
	}
	return file.NewLocal(loc)
}

// Lines emits every non-blank line read from o, with edge whitespace
// trimmed. Each emitted slice is owned by the receiver.
func Lines(o Opener) pipeline.Source[[]byte] {
	return pipeline.FromFunc(func(ctx context.Context, emit func([]byte) error) error {
		rc, err := o.Open(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()

		sc := bufio.NewScanner(rc)
		sc.Buffer(make([]byte, 64*1024), MaxLineSize)
		for sc.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if err := emit(append([]byte(nil), line...)); err != nil {
				return err
			}
		}
		return sc.Err()
	})
}
