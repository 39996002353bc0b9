package tape

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/hjson/hjson-go/v4"
)

// Encode serializes a Tape to JSON5 bytes. Key ordering follows §6.1 exactly
// so that encoded tapes diff stably; arrays preserve insertion order. The
// output is plain JSON syntax, which is valid JSON5 by the superset
// relationship, and base64 is standard padded.
func Encode(t *Tape) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeKey(&buf, "meta", true)
	if err := encodeMeta(&buf, &t.Meta); err != nil {
		return nil, err
	}
	buf.WriteByte(',')

	writeKey(&buf, "session", false)
	encodeSession(&buf, &t.Session)
	buf.WriteByte(',')

	writeKey(&buf, "exchanges", false)
	if err := encodeExchanges(&buf, t.Exchanges); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string, first bool) {
	if !first {
		// caller already wrote the separating comma
	}
	encodeString(buf, key)
	buf.WriteByte(':')
}

func encodeMeta(buf *bytes.Buffer, m *TapeMeta) error {
	buf.WriteByte('{')
	writeKey(buf, "createdAt", true)
	encodeString(buf, m.CreatedAt.UTC().Format(time.RFC3339))
	buf.WriteByte(',')

	writeKey(buf, "program", false)
	encodeString(buf, m.Program)
	buf.WriteByte(',')

	writeKey(buf, "args", false)
	encodeStringArray(buf, m.Args)
	buf.WriteByte(',')

	writeKey(buf, "env", false)
	encodeStringMap(buf, m.Env)
	buf.WriteByte(',')

	writeKey(buf, "cwd", false)
	encodeString(buf, m.CWD)
	buf.WriteByte(',')

	writeKey(buf, "pty", false)
	fmt.Fprintf(buf, `{"rows":%d,"cols":%d}`, m.PTY.Rows, m.PTY.Cols)

	if m.Tag != "" {
		buf.WriteByte(',')
		writeKey(buf, "tag", false)
		encodeString(buf, m.Tag)
	}
	if m.Latency != nil {
		buf.WriteByte(',')
		writeKey(buf, "latency", false)
		if m.Latency.HasRange {
			fmt.Fprintf(buf, `[%d,%d]`, m.Latency.Min, m.Latency.Max)
		} else {
			fmt.Fprintf(buf, `%d`, m.Latency.Const)
		}
	}
	if m.ErrorRate != nil {
		buf.WriteByte(',')
		writeKey(buf, "errorRate", false)
		fmt.Fprintf(buf, `%d`, *m.ErrorRate)
	}
	if m.Seed != nil {
		buf.WriteByte(',')
		writeKey(buf, "seed", false)
		fmt.Fprintf(buf, `%d`, *m.Seed)
	}
	buf.WriteByte('}')
	return nil
}

func encodeSession(buf *bytes.Buffer, s *SessionInfo) {
	buf.WriteByte('{')
	writeKey(buf, "platform", true)
	encodeString(buf, s.Platform)
	buf.WriteByte(',')
	writeKey(buf, "version", false)
	encodeString(buf, s.Version)
	buf.WriteByte(',')
	writeKey(buf, "flags", false)
	encodeStringArray(buf, s.Flags)
	buf.WriteByte('}')
}

func encodeExchanges(buf *bytes.Buffer, exchanges []Exchange) error {
	buf.WriteByte('[')
	for i, ex := range exchanges {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeExchange(buf, &ex); err != nil {
			return fmt.Errorf("exchanges[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeExchange(buf *bytes.Buffer, ex *Exchange) error {
	buf.WriteByte('{')

	writeKey(buf, "pre", true)
	buf.WriteByte('{')
	writeKey(buf, "prompt", true)
	encodeString(buf, ex.Pre.Prompt)
	if ex.Pre.StateHash != "" {
		buf.WriteByte(',')
		writeKey(buf, "stateHash", false)
		encodeString(buf, ex.Pre.StateHash)
	}
	buf.WriteByte('}')
	buf.WriteByte(',')

	writeKey(buf, "input", false)
	encodeInput(buf, ex.Input)
	buf.WriteByte(',')

	writeKey(buf, "output", false)
	if err := encodeChunks(buf, ex.Output); err != nil {
		return err
	}

	if ex.Exit != nil {
		buf.WriteByte(',')
		writeKey(buf, "exit", false)
		fmt.Fprintf(buf, `{"code":%d`, ex.Exit.Code)
		if ex.Exit.Signal != "" {
			buf.WriteString(`,"signal":`)
			encodeString(buf, ex.Exit.Signal)
		}
		buf.WriteByte('}')
	}

	buf.WriteByte(',')
	writeKey(buf, "durMs", false)
	fmt.Fprintf(buf, `%d`, ex.DurMS)

	if len(ex.Annotations) > 0 {
		buf.WriteByte(',')
		writeKey(buf, "annotations", false)
		encodeAnnotations(buf, ex.Annotations)
	}

	buf.WriteByte('}')
	return nil
}

func encodeInput(buf *bytes.Buffer, in Input) {
	buf.WriteByte('{')
	writeKey(buf, "type", true)
	encodeString(buf, in.Kind.String())
	buf.WriteByte(',')
	if in.Kind == Line {
		writeKey(buf, "dataText", false)
		encodeString(buf, in.Text)
	} else {
		writeKey(buf, "dataBytesB64", false)
		encodeString(buf, base64.StdEncoding.EncodeToString(in.Bytes))
	}
	buf.WriteByte('}')
}

func encodeChunks(buf *bytes.Buffer, chunks []Chunk) error {
	buf.WriteByte('[')
	for i, c := range chunks {
		if c.DelayMS < 0 {
			return fmt.Errorf("output[%d]: negative delayMs", i)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		isUTF8 := utf8.Valid(c.Data)
		fmt.Fprintf(buf, `{"delayMs":%d,"dataB64":`, c.DelayMS)
		encodeString(buf, base64.StdEncoding.EncodeToString(c.Data))
		fmt.Fprintf(buf, `,"isUtf8":%t}`, isUTF8)
	}
	buf.WriteByte(']')
	return nil
}

func encodeAnnotations(buf *bytes.Buffer, ann map[string]any) {
	keys := make([]string, 0, len(ann))
	for k := range ann {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		encodeScalar(buf, ann[k])
	}
	buf.WriteByte('}')
}

func encodeScalar(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case string:
		encodeString(buf, val)
	case bool:
		fmt.Fprintf(buf, "%t", val)
	case int, int32, int64, uint, uint32, uint64:
		fmt.Fprintf(buf, "%d", val)
	case float32, float64:
		fmt.Fprintf(buf, "%v", val)
	case nil:
		buf.WriteString("null")
	default:
		encodeString(buf, fmt.Sprintf("%v", val))
	}
}

func encodeString(buf *bytes.Buffer, s string) {
	b, _ := jsonMarshalString(s)
	buf.Write(b)
}

func encodeStringArray(buf *bytes.Buffer, arr []string) {
	buf.WriteByte('[')
	for i, s := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, s)
	}
	buf.WriteByte(']')
}

func encodeStringMap(buf *bytes.Buffer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		encodeString(buf, m[k])
	}
	buf.WriteByte('}')
}

// jsonMarshalString quotes and escapes a string using Go's JSON string
// escaping rules, without pulling in a full encoding/json round-trip for
// every scalar.
func jsonMarshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

// Decode parses JSON5 bytes into a Tape, tolerating both snake_case and
// camelCase field spellings (decoders must accept either per §6.1).
// hjson gives us comment/trailing-comma leniency for hand-edited fixtures;
// plain JSON produced by Encode parses through it unchanged.
func Decode(data []byte) (*Tape, error) {
	var raw map[string]any
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Path: "$", Reason: "invalid JSON5: " + err.Error()}
	}

	metaRaw, ok := lookup(raw, "meta")
	if !ok {
		return nil, &SchemaError{Path: "meta", Reason: "missing required field"}
	}
	metaMap, ok := metaRaw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: "meta", Reason: "expected object"}
	}
	meta, err := decodeMeta(metaMap)
	if err != nil {
		return nil, err
	}

	session := SessionInfo{}
	if sessRaw, ok := lookup(raw, "session"); ok {
		if sessMap, ok := sessRaw.(map[string]any); ok {
			session = decodeSession(sessMap)
		}
	}

	exRaw, ok := lookup(raw, "exchanges")
	if !ok {
		return nil, &SchemaError{Path: "exchanges", Reason: "missing required field"}
	}
	exList, ok := exRaw.([]any)
	if !ok {
		return nil, &SchemaError{Path: "exchanges", Reason: "expected array"}
	}
	if len(exList) == 0 {
		return nil, &SchemaError{Path: "exchanges", Reason: "must be non-empty"}
	}

	exchanges := make([]Exchange, 0, len(exList))
	sawExit := -1
	for i, raw := range exList {
		exMap, ok := raw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: fmt.Sprintf("exchanges[%d]", i), Reason: "expected object"}
		}
		ex, err := decodeExchange(exMap, i)
		if err != nil {
			return nil, err
		}
		if ex.Exit != nil {
			if sawExit >= 0 {
				return nil, &SchemaError{Path: fmt.Sprintf("exchanges[%d].exit", i), Reason: "at most one exit per tape"}
			}
			sawExit = i
		}
		exchanges = append(exchanges, *ex)
	}
	if sawExit >= 0 && sawExit != len(exchanges)-1 {
		return nil, &SchemaError{Path: fmt.Sprintf("exchanges[%d].exit", sawExit), Reason: "exit must appear on the last exchange"}
	}

	return &Tape{Meta: *meta, Session: session, Exchanges: exchanges}, nil
}

func decodeMeta(m map[string]any) (*TapeMeta, error) {
	meta := &TapeMeta{}

	createdAt, ok := lookupString(m, "createdAt", "created_at")
	if !ok {
		return nil, &SchemaError{Path: "meta.createdAt", Reason: "missing required field"}
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, &SchemaError{Path: "meta.createdAt", Reason: "not a valid RFC3339 timestamp"}
	}
	meta.CreatedAt = ts

	program, ok := lookupString(m, "program", "program")
	if !ok {
		return nil, &SchemaError{Path: "meta.program", Reason: "missing required field"}
	}
	meta.Program = program

	if argsRaw, ok := lookup(m, "args"); ok {
		args, err := toStringSlice(argsRaw)
		if err != nil {
			return nil, &SchemaError{Path: "meta.args", Reason: err.Error()}
		}
		meta.Args = args
	}

	if envRaw, ok := lookup(m, "env"); ok {
		env, err := toStringMap(envRaw)
		if err != nil {
			return nil, &SchemaError{Path: "meta.env", Reason: err.Error()}
		}
		meta.Env = env
	}

	if cwd, ok := lookupString(m, "cwd", "cwd"); ok {
		meta.CWD = cwd
	}

	if ptyRaw, ok := lookup(m, "pty"); ok {
		ptyMap, ok := ptyRaw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: "meta.pty", Reason: "expected object"}
		}
		rows, _ := toInt(firstOf(ptyMap, "rows"))
		cols, _ := toInt(firstOf(ptyMap, "cols"))
		meta.PTY = PTYSize{Rows: rows, Cols: cols}
	}

	if tag, ok := lookupString(m, "tag", "tag"); ok {
		meta.Tag = tag
	}

	if latRaw, ok := lookup(m, "latency"); ok {
		lat, err := decodeLatency(latRaw)
		if err != nil {
			return nil, &SchemaError{Path: "meta.latency", Reason: err.Error()}
		}
		meta.Latency = lat
	}

	if erRaw, ok := lookup(m, "errorRate", "error_rate"); ok {
		n, err := toInt(erRaw)
		if err != nil || n < 0 || n > 100 {
			return nil, &SchemaError{Path: "meta.errorRate", Reason: "must be an integer in [0,100]"}
		}
		v := uint8(n)
		meta.ErrorRate = &v
	}

	if seedRaw, ok := lookup(m, "seed"); ok {
		n, err := toInt64(seedRaw)
		if err != nil {
			return nil, &SchemaError{Path: "meta.seed", Reason: "must be an integer"}
		}
		v := uint64(n)
		meta.Seed = &v
	}

	return meta, nil
}

func decodeLatency(v any) (*LatencyOverride, error) {
	switch val := v.(type) {
	case []any:
		if len(val) != 2 {
			return nil, fmt.Errorf("range must have exactly 2 elements")
		}
		lo, err := toInt64(val[0])
		if err != nil {
			return nil, err
		}
		hi, err := toInt64(val[1])
		if err != nil {
			return nil, err
		}
		return &LatencyOverride{HasRange: true, Min: lo, Max: hi}, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("expected integer or [min,max]")
		}
		return &LatencyOverride{Const: n}, nil
	}
}

func decodeSession(m map[string]any) SessionInfo {
	s := SessionInfo{}
	if v, ok := lookupString(m, "platform", "platform"); ok {
		s.Platform = v
	}
	if v, ok := lookupString(m, "version", "version"); ok {
		s.Version = v
	}
	if v, ok := lookup(m, "flags"); ok {
		if arr, err := toStringSlice(v); err == nil {
			s.Flags = arr
		}
	}
	return s
}

func decodeExchange(m map[string]any, idx int) (*Exchange, error) {
	path := fmt.Sprintf("exchanges[%d]", idx)
	ex := &Exchange{}

	preRaw, ok := lookup(m, "pre")
	if !ok {
		return nil, &SchemaError{Path: path + ".pre", Reason: "missing required field"}
	}
	preMap, ok := preRaw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: path + ".pre", Reason: "expected object"}
	}
	prompt, _ := lookupString(preMap, "prompt", "prompt")
	ex.Pre.Prompt = prompt
	if sh, ok := lookupString(preMap, "stateHash", "state_hash"); ok {
		ex.Pre.StateHash = sh
	}

	inRaw, ok := lookup(m, "input")
	if !ok {
		return nil, &SchemaError{Path: path + ".input", Reason: "missing required field"}
	}
	inMap, ok := inRaw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: path + ".input", Reason: "expected object"}
	}
	in, err := decodeInput(inMap, path+".input")
	if err != nil {
		return nil, err
	}
	ex.Input = in

	outRaw, ok := lookup(m, "output")
	if !ok {
		return nil, &SchemaError{Path: path + ".output", Reason: "missing required field"}
	}
	outList, ok := outRaw.([]any)
	if !ok {
		return nil, &SchemaError{Path: path + ".output", Reason: "expected array"}
	}
	chunks := make([]Chunk, 0, len(outList))
	for i, cRaw := range outList {
		cMap, ok := cRaw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: fmt.Sprintf("%s.output[%d]", path, i), Reason: "expected object"}
		}
		c, err := decodeChunk(cMap, fmt.Sprintf("%s.output[%d]", path, i))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	ex.Output = chunks

	isLast := false
	_ = isLast
	if exitRaw, ok := lookup(m, "exit"); ok {
		exitMap, ok := exitRaw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: path + ".exit", Reason: "expected object"}
		}
		code, ok := toInt(firstOf(exitMap, "code"))
		if ok != nil {
			return nil, &SchemaError{Path: path + ".exit.code", Reason: "missing or invalid integer"}
		}
		info := &ExitInfo{Code: code}
		if sig, ok := lookupString(exitMap, "signal", "signal"); ok {
			info.Signal = sig
		}
		ex.Exit = info
	}

	durRaw, ok := lookup(m, "durMs", "dur_ms")
	if !ok {
		return nil, &SchemaError{Path: path + ".durMs", Reason: "missing required field"}
	}
	dur, err2 := toInt64(durRaw)
	if err2 != nil {
		return nil, &SchemaError{Path: path + ".durMs", Reason: "must be an integer"}
	}
	ex.DurMS = dur

	var sumDelay int64
	for _, c := range chunks {
		sumDelay += c.DelayMS
	}
	if sumDelay > ex.DurMS {
		return nil, &SchemaError{Path: path + ".durMs", Reason: "less than sum of chunk delays"}
	}

	if annRaw, ok := lookup(m, "annotations"); ok {
		if annMap, ok := annRaw.(map[string]any); ok {
			ex.Annotations = annMap
		}
	}

	return ex, nil
}

func decodeInput(m map[string]any, path string) (Input, error) {
	typ, ok := lookupString(m, "type", "type")
	if !ok {
		return Input{}, &SchemaError{Path: path + ".type", Reason: "missing required field"}
	}
	switch typ {
	case "line":
		text, ok := lookupString(m, "dataText", "data_text")
		if !ok {
			return Input{}, &SchemaError{Path: path + ".dataText", Reason: "missing required field"}
		}
		return Input{Kind: Line, Text: text}, nil
	case "raw":
		b64, ok := lookupString(m, "dataBytesB64", "data_bytes_b64")
		if !ok {
			return Input{}, &SchemaError{Path: path + ".dataBytesB64", Reason: "missing required field"}
		}
		b, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Input{}, &SchemaError{Path: path + ".dataBytesB64", Reason: "malformed base64"}
		}
		return Input{Kind: Raw, Bytes: b}, nil
	default:
		return Input{}, &SchemaError{Path: path + ".type", Reason: "must be \"line\" or \"raw\""}
	}
}

func decodeChunk(m map[string]any, path string) (*Chunk, error) {
	delayRaw, ok := lookup(m, "delayMs", "delay_ms")
	if !ok {
		return nil, &SchemaError{Path: path + ".delayMs", Reason: "missing required field"}
	}
	delay, err := toInt64(delayRaw)
	if err != nil || delay < 0 {
		return nil, &SchemaError{Path: path + ".delayMs", Reason: "must be a non-negative integer"}
	}

	b64, ok := lookupString(m, "dataB64", "data_b64")
	if !ok {
		return nil, &SchemaError{Path: path + ".dataB64", Reason: "missing required field"}
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &SchemaError{Path: path + ".dataB64", Reason: "malformed base64"}
	}

	isUTF8 := utf8.Valid(data)
	if v, ok := lookup(m, "isUtf8", "is_utf8"); ok {
		if b, ok := v.(bool); ok {
			isUTF8 = b
		}
	}

	return &Chunk{DelayMS: delay, Data: data, IsUTF8: isUTF8}, nil
}

// Validate runs schema validation against an already-decoded Tape,
// returning every violation found. strict additionally rejects unknown
// top-level keys, which requires access to the raw decoded document rather
// than the typed Tape — callers needing that should use ValidateRaw.
func Validate(t *Tape) []error {
	var errs []error
	if len(t.Exchanges) == 0 {
		errs = append(errs, &SchemaError{Path: "exchanges", Reason: "must be non-empty"})
	}
	sawExit := -1
	for i, ex := range t.Exchanges {
		var sumDelay int64
		for _, c := range ex.Output {
			if c.DelayMS < 0 {
				errs = append(errs, &SchemaError{Path: fmt.Sprintf("exchanges[%d].output", i), Reason: "negative delayMs"})
			}
			sumDelay += c.DelayMS
		}
		if sumDelay > ex.DurMS {
			errs = append(errs, &SchemaError{Path: fmt.Sprintf("exchanges[%d].durMs", i), Reason: "less than sum of chunk delays"})
		}
		if ex.Exit != nil {
			if sawExit >= 0 {
				errs = append(errs, &SchemaError{Path: fmt.Sprintf("exchanges[%d].exit", i), Reason: "at most one exit per tape"})
			}
			sawExit = i
		}
	}
	if sawExit >= 0 && sawExit != len(t.Exchanges)-1 {
		errs = append(errs, &SchemaError{Path: fmt.Sprintf("exchanges[%d].exit", sawExit), Reason: "exit must appear on the last exchange"})
	}
	return errs
}

// ValidateRaw additionally rejects unknown top-level keys (strict mode),
// operating on the raw JSON5 bytes rather than a typed Tape.
func ValidateRaw(data []byte, strict bool) []error {
	var raw map[string]any
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return []error{&SchemaError{Path: "$", Reason: "invalid JSON5: " + err.Error()}}
	}
	var errs []error
	if strict {
		allowed := map[string]bool{"meta": true, "session": true, "exchanges": true}
		for k := range raw {
			if !allowed[k] {
				errs = append(errs, &SchemaError{Path: k, Reason: "unknown top-level key"})
			}
		}
	}
	t, err := Decode(data)
	if err != nil {
		return append(errs, err)
	}
	return append(errs, Validate(t)...)
}

// --- lookup helpers: tolerate camelCase or snake_case spellings ---

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func firstOf(m map[string]any, key string) any {
	v, _ := lookup(m, key)
	return v
}

func lookupString(m map[string]any, camel, snake string) (string, bool) {
	v, ok := lookup(m, camel, snake)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toStringSlice(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array")
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func toStringMap(v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object")
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string values")
		}
		out[k] = s
	}
	return out, nil
}

func toInt(v any) (int, error) {
	n, err := toInt64(v)
	return int(n), err
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		return n, err
	default:
		return 0, fmt.Errorf("expected integer")
	}
}
