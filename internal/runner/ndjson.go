package runner

import "bytes"

// LineSplitter turns arbitrary read buffers into complete newline-terminated
// lines. Bytes after the last newline are retained until the next Feed or
// returned by Flush at end of stream.
type LineSplitter struct {
	buf []byte
}

// Feed appends p and returns every line completed by it, without the
// terminating "\n" or "\r\n". Returned slices are owned by the caller.
func (s *LineSplitter) Feed(p []byte) [][]byte {
	s.buf = append(s.buf, p...)
	var lines [][]byte
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(s.buf[:idx], []byte{'\r'})
		lines = append(lines, append([]byte(nil), line...))
		s.buf = s.buf[idx+1:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines
}

// Pending reports the number of buffered bytes not yet forming a line.
func (s *LineSplitter) Pending() int { return len(s.buf) }

// Flush returns the unterminated remainder, if any, and resets the splitter.
func (s *LineSplitter) Flush() []byte {
	rest := bytes.TrimSuffix(s.buf, []byte{'\r'})
	s.buf = nil
	if len(rest) == 0 {
		return nil
	}
	return rest
}

// streamPayload strips an optional SSE "data:" prefix. It returns false for
// lines that carry no JSON payload (blank lines, comments, [DONE]).
func streamPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if bytes.HasPrefix(line, []byte("data:")) {
		line = bytes.TrimSpace(line[len("data:"):])
	}
	if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
		return nil, false
	}
	return line, true
}
