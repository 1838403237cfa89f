package kernel

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

// signedPayload builds the byte sequence the signature covers: the ASCII
// hex checksum followed by the raw module bytes.
func signedPayload(checksumHex string, moduleBytes []byte) []byte {
	payload := make([]byte, 0, len(checksumHex)+len(moduleBytes))
	payload = append(payload, []byte(checksumHex)...)
	payload = append(payload, moduleBytes...)
	return payload
}

// VerifySignature checks sig against checksumHex ∥ moduleBytes using
// pubKey. It returns a *kerrors.KernelError on any failure, never a bare
// error.
func VerifySignature(pubKey ed25519.PublicKey, checksumHex string, moduleBytes, sig []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return kerrors.InvalidPublicKey(nil)
	}
	if len(sig) != ed25519.SignatureSize {
		return kerrors.SignatureInvalid(nil)
	}
	if !ed25519.Verify(pubKey, signedPayload(checksumHex, moduleBytes), sig) {
		return kerrors.SignatureInvalid(nil)
	}
	return nil
}

// SignModule signs checksumHex ∥ moduleBytes with privKey. It exists for
// tests and for offline descriptor-signing tooling; the kernel itself
// only ever verifies.
func SignModule(privKey ed25519.PrivateKey, checksumHex string, moduleBytes []byte) []byte {
	return ed25519.Sign(privKey, signedPayload(checksumHex, moduleBytes))
}

// decodeSignature hex-decodes a descriptor's signature field.
func decodeSignature(hexSig string) ([]byte, error) {
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return nil, kerrors.InvalidFormat("signature")
	}
	return sig, nil
}
