package sink

import "fmt"

// Pipe is the downstream load pipe one ingestion attempt writes into. A
// pipe must tolerate partial writes followed by Cancel without corrupting
// state for a retry. Exactly one of Finish or Cancel ends an attempt.
type Pipe interface {
	Configure(any) error // driver-specific YAML ⇒ struct
	Append(payload []byte) error
	Finish() error
	Cancel(reason error) error
}

// Format selects how payloads are framed into the pipe. It is decided once
// per attempt, not per record.
type Format uint8

const (
	FormatDelimited Format = iota // rows separated by a delimiter byte
	FormatStructured              // payloads appended as-is (e.g. JSON)
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "delimited":
		return FormatDelimited, nil
	case "structured":
		return FormatStructured, nil
	}
	return 0, fmt.Errorf("sink: unknown format %q", s)
}

// Appender binds a pipe to a framing chosen once per attempt.
type Appender struct {
	pipe      Pipe
	delim     byte
	delimited bool
}

func NewAppender(p Pipe, f Format, delim byte) Appender {
	return Appender{pipe: p, delim: delim, delimited: f == FormatDelimited}
}

func (a Appender) Append(payload []byte) error {
	if !a.delimited {
		return a.pipe.Append(payload)
	}
	buf := make([]byte, len(payload)+1)
	copy(buf, payload)
	buf[len(payload)] = a.delim
	return a.pipe.Append(buf)
}

/*──────── registry ───────*/

type factory = func() Pipe

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewPipe(name string) (Pipe, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
