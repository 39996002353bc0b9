package tape

import "fmt"

// SchemaError reports a tape that failed to decode or validate: a required
// field was missing, a type mismatched, delay_ms was negative, base64 was
// malformed, or exit appeared on a non-terminal exchange.
type SchemaError struct {
	Path   string // dotted path within the tape, e.g. "exchanges[2].output[0].delayMs"
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Path, e.Reason)
}
