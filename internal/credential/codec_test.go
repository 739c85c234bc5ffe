package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "clubgate/pkg/domain"
)

var issuedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec("CLUB", "s")
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	_, err := NewCodec("CL-UB", "s")
	require.Error(t, err)

	_, err = NewCodec("", "s")
	require.Error(t, err)

	_, err = NewCodec("CLUB", "")
	require.Error(t, err)
}

func TestIssue(t *testing.T) {
	codec := newTestCodec(t)

	payload, hash := codec.Issue(42, "10203040", issuedAt)

	sum := sha256.Sum256([]byte("42|10203040|2025-01-01T00:00:00|s"))
	want := "CLUB-42-" + hex.EncodeToString(sum[:])[:16]
	assert.Equal(t, want, payload)

	payloadSum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(payloadSum[:]), hash)

	again, _ := codec.Issue(42, "10203040", issuedAt)
	assert.Equal(t, payload, again, "issue must be deterministic")
}

func TestRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	payload, _ := codec.Issue(42, "10203040", issuedAt)

	require.NoError(t, codec.Verify(payload, 42, "10203040", issuedAt))

	memberID, ok := codec.ExtractID(payload)
	require.True(t, ok)
	assert.Equal(t, id.MemberID(42), memberID)
}

func TestVerify_DetectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	payload, _ := codec.Issue(42, "10203040", issuedAt)

	tests := []struct {
		name     string
		payload  string
		memberID id.MemberID
		document string
		issuedAt time.Time
		reason   Reason
	}{
		{"other member", payload, 43, "10203040", issuedAt, ReasonIDMismatch},
		{"other document", payload, 42, "10203041", issuedAt, ReasonChecksumMismatch},
		{"other issue time", payload, 42, "10203040", issuedAt.Add(time.Second), ReasonChecksumMismatch},
		{"flipped checksum char", flipLast(payload), 42, "10203040", issuedAt, ReasonChecksumMismatch},
		{"wrong prefix", "XCLUB" + payload[4:], 42, "10203040", issuedAt, ReasonPrefix},
		{"extra part", payload + "-x", 42, "10203040", issuedAt, ReasonPartCount},
		{"non integer id", strings.Replace(payload, "-42-", "-4a-", 1), 42, "10203040", issuedAt, ReasonNonIntegerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := codec.Verify(tt.payload, tt.memberID, tt.document, tt.issuedAt)
			require.Error(t, err)
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestVerify_OtherSecret(t *testing.T) {
	codec := newTestCodec(t)
	payload, _ := codec.Issue(42, "10203040", issuedAt)

	other, err := NewCodec("CLUB", "rotated")
	require.NoError(t, err)
	err = other.Verify(payload, 42, "10203040", issuedAt)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonChecksumMismatch, reason)
}

func TestExtractID(t *testing.T) {
	codec := newTestCodec(t)

	for _, payload := range []string{"NOT-A-QR", "", "CLUB-42", "CLUB--abc", "CLUB-4 2-abc", "CLUB-+42-abc", "CLUB-99999999999999999999-abc"} {
		_, ok := codec.ExtractID(payload)
		assert.False(t, ok, payload)
	}

	memberID, ok := codec.ExtractID("OTHER-7-anything")
	require.True(t, ok, "extraction does not check prefix or checksum")
	assert.Equal(t, id.MemberID(7), memberID)
}

func TestFormatIssuedAt(t *testing.T) {
	assert.Equal(t, "2025-01-01T00:00:00", FormatIssuedAt(issuedAt))
	assert.Equal(t, "2025-01-01T00:00:00.250000", FormatIssuedAt(issuedAt.Add(250*time.Millisecond)))

	local := time.Date(2025, 1, 1, 3, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, "2025-01-01T00:00:00", FormatIssuedAt(local))
}

func flipLast(payload string) string {
	last := payload[len(payload)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return payload[:len(payload)-1] + string(repl)
}
