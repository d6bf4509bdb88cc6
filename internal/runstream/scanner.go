package runstream

import "bytes"

// LineScanner incrementally splits an arbitrarily chunked byte stream into
// complete newline-terminated lines.
//
// Chunks arrive with no alignment to record boundaries, so the scanner
// buffers bytes until a terminator shows up. The trailing partial line,
// including any incomplete multi-byte UTF-8 sequence a chunk boundary may
// have split, stays in the buffer as raw bytes across writes; only complete
// lines are ever decoded to strings.
type LineScanner struct {
	buf []byte
}

// Write appends one chunk and returns every line the chunk completed, in
// stream order, without their terminators. A "\r\n" terminator is treated
// like "\n".
func (s *LineScanner) Write(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			return lines
		}
		line := s.buf[:idx]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, string(line))
		s.buf = s.buf[idx+1:]
	}
}

// Pending returns the retained partial line, raw.
func (s *LineScanner) Pending() []byte {
	return s.buf
}
