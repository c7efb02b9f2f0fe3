package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	MinCodeLength = 6
	MaxCodeLength = 8
)

// Session is the pairing room the client is currently attached to.
type Session struct {
	ID          string
	Code        string
	CodeDisplay string
	OwnerID     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	QRPayload   string
}

// Phase is the client-side lifecycle state of the current session.
type Phase string

const (
	PhaseNone     Phase = "none"
	PhaseCreating Phase = "creating"
	PhaseJoining  Phase = "joining"
	PhaseActive   Phase = "active"
	PhaseExpired  Phase = "expired"
	PhaseClosed   Phase = "closed"
)

// NormalizeCode removes separators and whitespace and uppercases the rest,
// so "abc-123", " ABC 123 " and "abc123" all normalise to "ABC123".
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// FormatCode inserts a hyphen in the middle of a normalised code:
// "ABC123" -> "ABC-123", "ABCD1234" -> "ABCD-1234".
func FormatCode(code string) string {
	code = NormalizeCode(code)
	if len(code) < MinCodeLength {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

var validate = validator.New()

// ValidCode reports whether a normalised code has the shape the server issues:
// 6 to 8 letters or digits.
func ValidCode(code string) bool {
	return validate.Var(code, "required,alphanum,min=6,max=8") == nil
}

// JoinURL builds the payload encoded into the QR code for a session.
func JoinURL(base, code string) string {
	if base == "" {
		return code
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "code=" + NormalizeCode(code)
}
