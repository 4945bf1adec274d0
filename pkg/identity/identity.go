// Package identity assigns stable opaque tokens to field definitions so an
// editor can reorder, edit, and delete fields without losing track of which
// definition is which. Tokens are never persisted; they are rebuilt on load.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formrules/pkg/schema"
)

// Token is an opaque field identity.
type Token string

const (
	prefixID   = "id:"
	prefixName = "name:"
	prefixPos  = "pos:"
	prefixNew  = "new:"
)

// Identify resolves the identity of field. In priority order: an existing
// token is returned unchanged, then the storage id, then the local name, and
// finally a positional placeholder built from positionHint.
func Identify(field schema.FieldDefinition, positionHint int) Token {
	if token := strings.TrimSpace(field.Identity); token != "" {
		return Token(token)
	}
	if id := strings.TrimSpace(field.ID); id != "" {
		return Token(prefixID + id)
	}
	if name := strings.TrimSpace(field.Name); name != "" {
		return Token(prefixName + name)
	}
	return Token(prefixPos + strconv.Itoa(positionHint))
}

var fallbackCounter atomic.Uint64

// New returns a process-unique token for a freshly created field. Tokens are
// UUIDv7 (millisecond timestamp plus random bits).
func New() Token {
	id, err := uuid.NewV7()
	if err == nil {
		return Token(prefixNew + id.String())
	}
	var suffix [6]byte
	_, _ = rand.Read(suffix[:])
	seq := fallbackCounter.Add(1)
	return Token(prefixNew + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" +
		strconv.FormatUint(seq, 36) + "-" + hex.EncodeToString(suffix[:]))
}

// Positional reports whether the token is a placeholder derived from a
// position. Such tokens are superseded once the field acquires a name.
func (t Token) Positional() bool {
	return strings.HasPrefix(string(t), prefixPos)
}

// String implements fmt.Stringer.
func (t Token) String() string {
	return string(t)
}
