package cairovnc

import (
	"net"
	"testing"
	"time"
)

func TestVNCDESKeyBitReversal(t *testing.T) {
	// "a" = 0x61 = 0b01100001; bit-reversed = 0b10000110 = 0x86.
	key := vncDESKey("a")
	if key[0] != 0x86 {
		t.Fatalf("reversed key byte = %#x, want 0x86", key[0])
	}
	// Empty password: key is 8 zero bytes, reversal of zero is zero.
	empty := vncDESKey("")
	for i, b := range empty {
		if b != 0 {
			t.Fatalf("empty-password key byte %d = %#x, want 0", i, b)
		}
	}
}

func TestDesEncryptChallengeDeterministic(t *testing.T) {
	challenge := make([]byte, challengeLen)
	a, err := desEncryptChallenge("", challenge)
	if err != nil {
		t.Fatalf("desEncryptChallenge: %v", err)
	}
	b, err := desEncryptChallenge("", challenge)
	if err != nil {
		t.Fatalf("desEncryptChallenge: %v", err)
	}
	if !subtleEqual(a, b) {
		t.Fatal("expected the empty-password cipher to be deterministic")
	}
	if len(a) != challengeLen {
		t.Fatalf("ciphertext length = %d, want %d", len(a), challengeLen)
	}
}

func TestSecurityVNCAuthRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	handler := newSecurityVNCAuth("secret", "")

	resultCh := make(chan error, 1)
	go func() {
		_, err := handler.Authenticate(NewByteStream(serverConn), time.Second)
		resultCh <- err
	}()

	var challenge [challengeLen]byte
	if _, err := clientConn.Read(challenge[:]); err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	response, err := desEncryptChallenge("secret", challenge[:])
	if err != nil {
		t.Fatalf("desEncryptChallenge: %v", err)
	}
	if _, err := clientConn.Write(response); err != nil {
		t.Fatalf("write response: %v", err)
	}

	if err := <-resultCh; err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestSecurityVNCAuthWrongPassword(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	handler := newSecurityVNCAuth("secret", "")

	resultCh := make(chan error, 1)
	go func() {
		_, err := handler.Authenticate(NewByteStream(serverConn), time.Second)
		resultCh <- err
	}()

	var challenge [challengeLen]byte
	if _, err := clientConn.Read(challenge[:]); err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	wrong, err := desEncryptChallenge("not-secret", challenge[:])
	if err != nil {
		t.Fatalf("desEncryptChallenge: %v", err)
	}
	if _, err := clientConn.Write(wrong); err != nil {
		t.Fatalf("write response: %v", err)
	}

	if err := <-resultCh; err == nil {
		t.Fatal("expected authentication to fail for a wrong password")
	}
}
