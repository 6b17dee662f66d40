// Package uid generates the short correlation id that ties a failure to its
// log lines, notifications and the message shown to the user.
package uid

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/afikmenashe/logpipe/internal/record"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var pattern = regexp.MustCompile(`^[0-9A-Z]{4}-[0-9A-Z]{4}$`)

// Generate returns a new id in the form XXXX-XXXX.
func Generate() (string, error) {
	buf := make([]byte, 9)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		if i == 4 {
			buf[i] = '-'
			continue
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate correlation id: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// mustGenerate is for startup, where a failing entropy source is fatal.
func mustGenerate() string {
	id, err := Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// Valid reports whether s is a well-formed correlation id.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Processor stamps the same id onto every record it processes. One Processor
// lives as long as the logger it is attached to.
type Processor struct {
	id string
}

// NewProcessor creates a processor with a freshly generated id.
func NewProcessor() *Processor {
	return &Processor{id: mustGenerate()}
}

// NewFixed creates a processor that stamps the given id.
func NewFixed(id string) *Processor {
	return &Processor{id: id}
}

// ID returns the id this processor stamps.
func (p *Processor) ID() string {
	return p.id
}

// Process adds the id to the record's extra metadata.
func (p *Processor) Process(_ context.Context, r *record.Record) {
	r.SetExtra(record.ExtraUID, p.id)
}
