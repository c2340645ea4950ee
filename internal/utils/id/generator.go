// Package id mints the identifiers that tie logs, spans, notices and bridge
// connections back to one upload.
package id

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy selects how identifier bodies are generated.
type Strategy int32

const (
	// StrategyKSUID produces 27 character, time-sortable bodies.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 produces 36 character, time-ordered UUIDs.
	StrategyUUIDv7
)

var strategy atomic.Int32

// SetStrategy switches every generator in the process.
func SetStrategy(s Strategy) {
	strategy.Store(int32(s))
}

// ParseStrategy maps the id_strategy setting. Unknown values select KSUID.
func ParseStrategy(value string) Strategy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "uuidv7", "uuid":
		return StrategyUUIDv7
	default:
		return StrategyKSUID
	}
}

// NewUploadID identifies one orchestration run.
func NewUploadID() string { return newPrefixed("upload") }

// NewConnectionID identifies one editor bridge connection.
func NewConnectionID() string { return newPrefixed("conn") }

// NewNoticeID identifies a notice shown to the user.
func NewNoticeID() string { return newPrefixed("notice") }

func newPrefixed(prefix string) string {
	if Strategy(strategy.Load()) == StrategyUUIDv7 {
		if v7, err := uuid.NewV7(); err == nil {
			return prefix + "-" + v7.String()
		}
	}
	return prefix + "-" + ksuid.New().String()
}
