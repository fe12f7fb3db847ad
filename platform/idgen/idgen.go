// Package idgen produces the opaque, non-sequential identifiers used for
// marketplace records.
package idgen

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Prefix tags an identifier with the kind of record it names.
type Prefix string

const (
	Request       Prefix = "REQ"
	StatusLog     Prefix = "RLOG"
	RequestImage  Prefix = "IMG"
	Assignment    Prefix = "ASSIGN"
	Quotation     Prefix = "QUOTE"
	QuotationItem Prefix = "QITEM"
	ItemLog       Prefix = "QLOG"
	ItemImage     Prefix = "QIMG"
	Payment       Prefix = "PAY"
	PaymentProof  Prefix = "PPF"
)

// New returns prefix followed by 32 lowercase hex characters of a random
// (version 4) UUID.
func New(prefix Prefix) string {
	id := uuid.New()
	return string(prefix) + hex.EncodeToString(id[:])
}

// HasPrefix reports whether id is well formed for prefix.
func HasPrefix(id string, prefix Prefix) bool {
	rest, ok := strings.CutPrefix(id, string(prefix))
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
