package classify

import "filippo.io/edwards25519"

// IsOnCurve reports whether a 32-byte public key is a valid ed25519 curve
// point. Wallet keys are on-curve; program derived addresses are not.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}
