package utils

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// MaxBodySize caps how much of an upstream body is read.
const MaxBodySize = 32 << 20

var bufPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// ReadResponseBody reads at most MaxBodySize bytes of the body through a pooled buffer
// and returns an owned copy.
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	_, err := buf.ReadFrom(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}
