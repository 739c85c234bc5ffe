// Package credential issues and verifies the tamper-evident QR payloads
// carried by members.
//
// A payload has the form PREFIX-MEMBERID-CHECKSUM where CHECKSUM is the first
// 16 hex characters of sha256("MEMBERID|DOCUMENT|ISSUEDAT|SECRET"). The
// checksum binds the payload to the member's immutable credential timestamp,
// so re-issuing a credential invalidates the previous one.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	id "clubgate/pkg/domain"
)

const (
	checksumLength = 16
	separator      = "-"
	issuedAtLayout = "2006-01-02T15:04:05"
)

// Reason identifies why a payload failed verification.
type Reason string

const (
	ReasonPartCount        Reason = "wrong part count"
	ReasonPrefix           Reason = "wrong prefix"
	ReasonNonIntegerID     Reason = "non-integer id"
	ReasonIDMismatch       Reason = "id mismatch"
	ReasonChecksumMismatch Reason = "checksum mismatch"
)

// VerifyError is returned by Verify with the structured failure reason.
type VerifyError struct {
	Reason Reason
}

func (e *VerifyError) Error() string {
	return "credential verification failed: " + string(e.Reason)
}

// ReasonOf extracts the failure reason from a Verify error.
func ReasonOf(err error) (Reason, bool) {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// Codec is stateless apart from its prefix and secret and is safe for
// concurrent use.
type Codec struct {
	prefix string
	secret []byte
}

// NewCodec validates the organisation prefix and returns a codec.
func NewCodec(prefix, secret string) (*Codec, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("credential prefix is required")
	}
	if strings.Contains(prefix, separator) {
		return nil, fmt.Errorf("credential prefix %q must not contain %q", prefix, separator)
	}
	if secret == "" {
		return nil, errors.New("credential secret is required")
	}
	return &Codec{prefix: prefix, secret: []byte(secret)}, nil
}

// Prefix returns the configured organisation prefix.
func (c *Codec) Prefix() string {
	return c.prefix
}

// Issue returns the payload for a member and the sha256 hex digest of that
// payload, which is stored alongside it for uniqueness checks.
func (c *Codec) Issue(memberID id.MemberID, document string, issuedAt time.Time) (payload string, hash string) {
	memberPart := strconv.FormatInt(int64(memberID), 10)
	payload = c.prefix + separator + memberPart + separator + c.checksum(memberPart, document, issuedAt)
	sum := sha256.Sum256([]byte(payload))
	return payload, hex.EncodeToString(sum[:])
}

// ExtractID returns the member id embedded in payload. It performs no
// verification and reports false for anything that does not parse.
func (c *Codec) ExtractID(payload string) (id.MemberID, bool) {
	parts := strings.Split(payload, separator)
	if len(parts) != 3 {
		return 0, false
	}
	memberID, ok := parseMemberPart(parts[1])
	if !ok {
		return 0, false
	}
	return memberID, true
}

// Verify re-derives the checksum for the given member and compares it with
// the payload's in constant time.
func (c *Codec) Verify(payload string, memberID id.MemberID, document string, issuedAt time.Time) error {
	parts := strings.Split(payload, separator)
	if len(parts) != 3 {
		return &VerifyError{Reason: ReasonPartCount}
	}
	if parts[0] != c.prefix {
		return &VerifyError{Reason: ReasonPrefix}
	}
	parsedID, ok := parseMemberPart(parts[1])
	if !ok {
		return &VerifyError{Reason: ReasonNonIntegerID}
	}
	if parsedID != memberID {
		return &VerifyError{Reason: ReasonIDMismatch}
	}

	expected := c.checksum(parts[1], document, issuedAt)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return &VerifyError{Reason: ReasonChecksumMismatch}
	}
	return nil
}

func (c *Codec) checksum(memberPart, document string, issuedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(memberPart))
	h.Write([]byte("|"))
	h.Write([]byte(document))
	h.Write([]byte("|"))
	h.Write([]byte(FormatIssuedAt(issuedAt)))
	h.Write([]byte("|"))
	h.Write(c.secret)
	return hex.EncodeToString(h.Sum(nil))[:checksumLength]
}

// FormatIssuedAt renders the credential timestamp the way it is bound into
// the checksum: UTC, second precision, with microseconds only when non-zero.
func FormatIssuedAt(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(issuedAtLayout)
	}
	return t.Format(issuedAtLayout + ".000000")
}

func parseMemberPart(s string) (id.MemberID, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id.MemberID(v), true
}
