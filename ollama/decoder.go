package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"ollmchat/config"
)

// Decoder splits a newline-delimited JSON body into objects.
//
// A line is only handed to the JSON parser when, trimmed, it is non-empty and
// ends with '}'. Lines that still fail to parse are logged and skipped.
type Decoder struct {
	r       *bufio.Reader
	Dropped int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next accepted line. io.EOF signals the end of the body.
func (d *Decoder) Next() ([]byte, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[len(line)-1] == '}' {
			// A final line without newline still counts; report EOF on the
			// following call.
			return line, nil
		}
		if len(line) > 0 {
			d.Dropped++
			if config.DebugLog != nil {
				config.DebugLog.Printf("[ollama] dropping partial line (%d bytes)", len(line))
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// Decode parses every accepted line as T and passes it to fn in arrival
// order. It returns nil at end of body and also when ctx is cancelled: what
// was delivered so far stands. Errors from fn are returned unchanged.
func Decode[T any](ctx context.Context, r io.Reader, fn func(T) error) error {
	d := NewDecoder(r)
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			d.Dropped++
			if config.DebugLog != nil {
				config.DebugLog.Printf("[ollama] dropping malformed chunk: %v", err)
			}
			continue
		}

		if err := fn(v); err != nil {
			return err
		}
	}
}
