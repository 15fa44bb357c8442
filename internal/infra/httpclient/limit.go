package httpclient

import (
	"errors"
	"fmt"
	"io"
)

// ErrBodyTooLarge is wrapped by ReadAllWithLimit when the body exceeds
// its limit.
var ErrBodyTooLarge = errors.New("response body too large")

// ReadAllWithLimit reads r to EOF, failing once more than limit bytes
// arrive. A non-positive limit disables the check.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}
