// Package stream turns the raw chunks of a response body into complete lines.
//
// Chunk boundaries carry no meaning: a chunk may end in the middle of a line
// or in the middle of a multibyte character. Bytes are kept in one buffer that
// persists across chunks and a line is only released once its terminator has
// been observed.
package stream

import (
	"bytes"
	"fmt"
	"iter"
	"unicode/utf8"
)

const DefaultMaxLineBytes = 1024 * 1024

// DecodeError reports a line that could not be turned into text. The line is
// skipped; decoding continues with the next one.
type DecodeError struct {
	Reason string
	// Preview holds at most the first 64 bytes of the offending line.
	Preview []byte
}

func (e *DecodeError) Error() string {
	if len(e.Preview) == 0 {
		return "decode error: " + e.Reason
	}
	return fmt.Sprintf("decode error: %s (%q)", e.Reason, e.Preview)
}

func newDecodeError(reason string, line []byte) *DecodeError {
	preview := line
	if len(preview) > 64 {
		preview = preview[:64]
	}
	return &DecodeError{Reason: reason, Preview: bytes.Clone(preview)}
}

type options struct {
	maxLineBytes int
}

type Option func(*options)

// WithMaxLineBytes bounds the size of a single line. Longer lines are
// reported as *DecodeError and dropped up to their terminator.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineBytes = n
		}
	}
}

// Lines yields every complete line of chunks, without its "\n" or "\r\n"
// terminator. A non-empty remainder without terminator is yielded once chunks
// ends. Errors from chunks are passed through and end the sequence; a
// *DecodeError is yielded for a line that is skipped.
func Lines(chunks iter.Seq2[[]byte, error], opts ...Option) iter.Seq2[string, error] {
	o := options{maxLineBytes: DefaultMaxLineBytes}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(string, error) bool) {
		var buf []byte
		// discarding is set while skipping the rest of an oversized line
		discarding := false

		emit := func(line []byte) bool {
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if !utf8.Valid(line) {
				return yield("", newDecodeError("invalid UTF-8", line))
			}
			return yield(string(line), nil)
		}
		tooLong := func(line []byte) *DecodeError {
			return newDecodeError(fmt.Sprintf("line exceeds %d bytes", o.maxLineBytes), line)
		}

		for chunk, err := range chunks {
			if err != nil {
				yield("", err)
				return
			}

			for len(chunk) > 0 {
				end := bytes.IndexByte(chunk, '\n')
				if end < 0 {
					if discarding {
						break
					}
					if len(buf)+len(chunk) > o.maxLineBytes {
						decodeErr := tooLong(append(buf, chunk...))
						buf = buf[:0]
						discarding = true
						if !yield("", decodeErr) {
							return
						}
						break
					}
					buf = append(buf, chunk...)
					break
				}

				part := chunk[:end]
				chunk = chunk[end+1:]

				if discarding {
					discarding = false
					continue
				}

				if len(buf)+len(part) > o.maxLineBytes {
					decodeErr := tooLong(append(buf, part...))
					buf = buf[:0]
					if !yield("", decodeErr) {
						return
					}
					continue
				}

				line := part
				if len(buf) > 0 {
					buf = append(buf, part...)
					line = buf
				}
				if !emit(line) {
					return
				}
				buf = buf[:0]
			}
		}

		if !discarding && len(buf) > 0 {
			emit(buf)
		}
	}
}

// Chunks adapts a fixed list of chunks to the sequence Lines consumes.
func Chunks(chunks ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
