package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
)

// TapeNameGenerator resolves the relative (to the tapes root) path a newly
// recorded tape should be written to.
type TapeNameGenerator func(ctx keybuilder.Context) string

// DefaultNaming implements the §6.5 layout:
// <program_basename>/unnamed-<epoch_ms>-<hash8>.json5
func DefaultNaming() TapeNameGenerator {
	return func(ctx keybuilder.Context) string {
		base := filepath.Base(ctx.Program)
		epochMS := time.Now().UnixMilli()
		hash8 := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		return filepath.Join(base, fmt.Sprintf("unnamed-%d-%s.json5", epochMS, hash8))
	}
}

// NamedNaming builds a stable name from a caller-supplied --name value,
// still nested under the program's basename directory.
func NamedNaming(name string) TapeNameGenerator {
	return func(ctx keybuilder.Context) string {
		base := filepath.Base(ctx.Program)
		return filepath.Join(base, name+".json5")
	}
}
