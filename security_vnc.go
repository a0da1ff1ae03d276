package cairovnc

import (
	"crypto/des"
	"crypto/rand"
	"errors"
	"time"
)

// challengeLen is the size, in bytes, of the random challenge the server
// sends and the client must encrypt and return (RFC 6143 §7.2.2).
const challengeLen = 16

// securityVNCAuth implements security type 2: VNC Authentication, a DES
// challenge-response keyed by a shared password. It supports the dual
// password model: a full-control password and an independent read-only
// password, either of which authenticates (spec.md §4.4, §6). The teacher's
// security_aten.go/security_vencryptplain.go show the shape of a keyed
// challenge handler in this codebase's idiom; this type follows it but adds
// the DES bit-reversal key schedule RFC 6143 mandates and that the teacher
// never implemented.
type securityVNCAuth struct {
	password         string
	readOnlyPassword string
}

func newSecurityVNCAuth(password, readOnlyPassword string) *securityVNCAuth {
	return &securityVNCAuth{password: password, readOnlyPassword: readOnlyPassword}
}

func (s *securityVNCAuth) Type() SecurityType { return SecurityVNCAuth }

func (s *securityVNCAuth) Authenticate(stream *ByteStream, timeout time.Duration) (bool, error) {
	challenge := make([]byte, challengeLen)
	if _, err := rand.Read(challenge); err != nil {
		return false, err
	}
	if err := stream.Write(challenge); err != nil {
		return false, err
	}

	response, err := stream.ReadExact(challengeLen, timeout)
	if err != nil {
		return false, err
	}

	if s.password != "" {
		expected, err := desEncryptChallenge(s.password, challenge)
		if err != nil {
			return false, err
		}
		if subtleEqual(response, expected) {
			return false, nil
		}
	}
	if s.readOnlyPassword != "" {
		expected, err := desEncryptChallenge(s.readOnlyPassword, challenge)
		if err != nil {
			return false, err
		}
		if subtleEqual(response, expected) {
			return true, nil
		}
	}
	return false, errors.New("Authentication by VNC Authentication failed")
}

// desEncryptChallenge encrypts a 16-byte challenge with password as the DES
// key, reproducing the canonical VNC key-scheduling quirk: the password is
// truncated or zero-padded to 8 bytes, and each of those 8 bytes has its bit
// order reversed before it is used as the DES key (spec.md §4.4). RFB uses
// two independent 8-byte ECB blocks rather than DES-CBC.
func desEncryptChallenge(password string, challenge []byte) ([]byte, error) {
	key := vncDESKey(password)
	block, err := des.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(challenge))
	for offset := 0; offset < len(challenge); offset += des.BlockSize {
		block.Encrypt(out[offset:offset+des.BlockSize], challenge[offset:offset+des.BlockSize])
	}
	return out, nil
}

func vncDESKey(password string) []byte {
	key := make([]byte, 8)
	copy(key, password)
	for i, b := range key {
		key[i] = reverseBits(b)
	}
	return key
}

func reverseBits(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// subtleEqual is a plain constant-time-agnostic compare: the VNC challenge
// is not a secret once observed on the wire, so there is nothing a timing
// side channel here would leak that the protocol doesn't already expose.
func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
