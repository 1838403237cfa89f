package capability

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

// Token is the opaque external reference to a Capability: cap_<id>_<hmac16>.
type Token string

// mintToken builds the external token for id using secret, per
// cap_<decimal-id>_<16-hex-chars>, where the hex chars are the leading
// half of SHA-256(id_le_bytes ∥ secret). The name "hmac16" in the wire
// format refers to the field's role, not a true HMAC construction: the
// digest is a plain SHA-256 over the concatenation.
func mintToken(id uint64, secret []byte) Token {
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], id)

	h := sha256.New()
	h.Write(idBuf[:])
	h.Write(secret)
	sum := h.Sum(nil)

	return Token(fmt.Sprintf("cap_%d_%s", id, hex.EncodeToString(sum[:8])))
}

// parseToken extracts the embedded capability id from a token without
// verifying the hmac (verification happens against the live secret in
// Manager.Validate, which recomputes the expected token and compares).
func parseToken(t Token) (uint64, error) {
	s := string(t)
	if !strings.HasPrefix(s, "cap_") {
		return 0, kerrors.InvalidToken(fmt.Errorf("missing cap_ prefix"))
	}
	rest := strings.TrimPrefix(s, "cap_")
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, kerrors.InvalidToken(fmt.Errorf("malformed token shape"))
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, kerrors.InvalidToken(fmt.Errorf("non-numeric id: %w", err))
	}
	if len(parts[1]) != 16 {
		return 0, kerrors.InvalidToken(fmt.Errorf("hmac segment must be 16 hex chars"))
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return 0, kerrors.InvalidToken(fmt.Errorf("hmac segment not hex: %w", err))
	}
	return id, nil
}
