package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingTaskID = errors.New("protocol: task id is required")
	ErrMalformed     = errors.New("protocol: malformed message")
)

// maxFrameBytes bounds a single frame: 30 MiB of input grows by 4/3 once
// base64 encoded, plus the envelope.
const maxFrameBytes = 64 << 20

// Encoder writes newline-delimited JSON frames.
type Encoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	return &Encoder{w: bw, enc: json.NewEncoder(bw)}
}

// Encode writes one frame and flushes it.
func (e *Encoder) Encode(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("protocol: flush frame: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON frames.
type Decoder struct {
	s *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Decoder{s: s}
}

// DecodeRequest reads the next request frame. io.EOF is returned as-is when
// the stream is closed cleanly.
func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request
	if err := d.next(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeResponse reads the next response frame.
func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response
	if err := d.next(&resp); err != nil {
		return Response{}, err
	}
	if resp.TaskID.IsNil() {
		return Response{}, fmt.Errorf("%w: response without task id", ErrMalformed)
	}
	return resp, nil
}

func (d *Decoder) next(v any) error {
	if !d.s.Scan() {
		if err := d.s.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return io.EOF
	}
	if err := json.Unmarshal(d.s.Bytes(), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
