package validate

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// SignatureLen is the decoded size of a compact recoverable signature:
// one recovery byte followed by the 64-byte signature proper.
const SignatureLen = 65

// Signature format errors. These are cheap structural rejections produced
// before any cryptographic work is attempted.
var (
	ErrSignatureEmpty    = errors.New("signature is empty")
	ErrSignatureCharset  = errors.New("signature is neither hex nor base64")
	ErrSignatureHexLen   = fmt.Errorf("hex signature must decode to %d bytes", SignatureLen)
	ErrSignatureB64Len   = fmt.Errorf("base64 signature must decode to %d bytes", SignatureLen)
	ErrSignatureB64Short = errors.New("base64 signature too short to contain a full signature")
)

var (
	hexSigRe = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	b64SigRe = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

// minB64SigLen is the shortest base64 string that can encode SignatureLen
// bytes: ceil(65/3)*4 characters including padding.
const minB64SigLen = (SignatureLen + 2) / 3 * 4

// CheckSignatureFormat confirms sig is a well-formed encoding of a compact
// recoverable signature: either hex or standard base64, decoding to exactly
// SignatureLen bytes. It does not verify the signature.
func CheckSignatureFormat(sig string) error {
	if sig == "" {
		return ErrSignatureEmpty
	}

	if hexSigRe.MatchString(sig) {
		if len(sig) != SignatureLen*2 {
			return ErrSignatureHexLen
		}
		if _, err := hex.DecodeString(sig); err != nil {
			return ErrSignatureHexLen
		}
		return nil
	}

	if b64SigRe.MatchString(sig) {
		if len(sig) < minB64SigLen {
			return ErrSignatureB64Short
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			return ErrSignatureCharset
		}
		if len(decoded) != SignatureLen {
			return ErrSignatureB64Len
		}
		return nil
	}

	return ErrSignatureCharset
}
