// Package tape holds the in-memory tape/exchange/chunk shapes and their
// JSON5 codec. A Tape captures one recorded invocation of a target program:
// its meta, session info, and an ordered list of exchanges.
package tape

import "time"

// InputKind tags whether an exchange's input was sent as a newline-terminated
// line or as arbitrary raw bytes.
type InputKind int

const (
	Line InputKind = iota
	Raw
)

func (k InputKind) String() string {
	if k == Line {
		return "line"
	}
	return "raw"
}

// Input is the tagged input value that started an exchange. For Line inputs,
// Text holds the line without its trailing newline; for Raw inputs, Bytes
// holds the exact bytes sent.
type Input struct {
	Kind  InputKind
	Text  string
	Bytes []byte
}

// NewLineInput builds a Line input from caller-supplied text.
func NewLineInput(text string) Input {
	return Input{Kind: Line, Text: StripTrailingNewline(text)}
}

// NewRawInput builds a Raw input from arbitrary bytes.
func NewRawInput(b []byte) Input {
	return Input{Kind: Raw, Bytes: append([]byte(nil), b...)}
}

// Bytes returns the input's content as bytes regardless of kind: for Line,
// the text with its trailing newline already stripped.
func (in Input) AsBytes() []byte {
	if in.Kind == Line {
		return []byte(in.Text)
	}
	return in.Bytes
}

// StripTrailingNewline strips a single trailing "\r\n" or "\n".
func StripTrailingNewline(s string) string {
	if len(s) >= 2 && s[len(s)-2] == '\r' && s[len(s)-1] == '\n' {
		return s[:len(s)-2]
	}
	if len(s) >= 1 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}

// Chunk is a unit of recorded output: a delay since the previous chunk in
// the same exchange, the raw bytes produced, and whether those bytes are
// valid UTF-8 (a pretty-printing hint computed at encode time).
type Chunk struct {
	DelayMS int64
	Data    []byte
	IsUTF8  bool
}

// PreContext is the pre-exchange snapshot: the prompt signature in effect
// and an optional caller-supplied state hash disambiguating otherwise
// identical contexts.
type PreContext struct {
	Prompt    string
	StateHash string // empty means "not supplied"
}

// ExitInfo is terminal process exit information, present on at most one
// exchange per tape (the last one).
type ExitInfo struct {
	Code   int
	Signal string // empty means "not supplied"
}

// Exchange is one atomic input-plus-response segment of a tape.
type Exchange struct {
	Pre         PreContext
	Input       Input
	Output      []Chunk
	Exit        *ExitInfo
	DurMS       int64
	Annotations map[string]any
}

// PTYSize describes the pseudo-terminal dimensions recorded for a session.
type PTYSize struct {
	Rows int
	Cols int
}

// LatencyOverride is a per-tape override of the session's latency policy.
// Exactly one of Const or Range is meaningful, selected by HasRange.
type LatencyOverride struct {
	Const    int64
	HasRange bool
	Min, Max int64
}

// TapeMeta is metadata captured once at record time.
type TapeMeta struct {
	CreatedAt time.Time
	Program   string
	Args      []string
	Env       map[string]string
	CWD       string
	PTY       PTYSize
	Tag       string // empty means "not supplied"

	Latency   *LatencyOverride
	ErrorRate *uint8
	Seed      *uint64
}

// SessionInfo records the recording environment: platform, tool version,
// and any CLI flags that are relevant to reproducing the recording.
type SessionInfo struct {
	Platform string
	Version  string
	Flags    []string
}

// Tape is the full persisted record of one program invocation.
type Tape struct {
	Meta      TapeMeta
	Session   SessionInfo
	Exchanges []Exchange
}
