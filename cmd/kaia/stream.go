package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// streamSink prints tokens as they arrive, wrapping at a column limit so
// streamed answers stay readable in a terminal.
type streamSink struct {
	w      io.Writer
	width  int
	column int
}

func newStreamSink(w io.Writer, width int) *streamSink {
	if width <= 0 {
		width = 80
	}
	return &streamSink{w: w, width: width}
}

func (s *streamSink) Write(token string) {
	for {
		newline := strings.IndexByte(token, '\n')
		if newline < 0 {
			s.writeSegment(token)
			return
		}
		s.writeSegment(token[:newline])
		fmt.Fprintln(s.w)
		s.column = 0
		token = token[newline+1:]
	}
}

func (s *streamSink) writeSegment(segment string) {
	if segment == "" {
		return
	}
	length := utf8.RuneCountInString(segment)
	if s.column > 0 && s.column+length > s.width && strings.HasPrefix(segment, " ") {
		fmt.Fprintln(s.w)
		s.column = 0
		segment = strings.TrimLeft(segment, " ")
		length = utf8.RuneCountInString(segment)
	}
	fmt.Fprint(s.w, segment)
	s.column += length
}

func (s *streamSink) Flush() {
	if s.column > 0 {
		fmt.Fprintln(s.w)
		s.column = 0
	}
}
