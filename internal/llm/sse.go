package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseReader yields the payloads of "data:" lines from a server-sent event
// stream.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// next returns the following data payload, or io.EOF.
func (s *sseReader) next() (string, error) {
	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimSpace(line)
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return strings.TrimSpace(data), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
	}
}
