package cairovnc

import "time"

// SecurityHandler implements one RFB security type's server-side handshake.
// Authenticate runs after the client has chosen this type and must leave the
// stream positioned exactly after the handshake's final byte; the
// SecurityResult status word that follows is written by the caller, not the
// handler (spec.md §4.4).
//
// Authenticate returns a non-nil error on authentication failure; the error
// message becomes the ISO-8859-1 reason string sent to protocol >= 3.8
// clients. readOnly reports whether the credential that succeeded grants
// only read-only access (the dual-password model, spec.md §6).
type SecurityHandler interface {
	Type() SecurityType
	Authenticate(stream *ByteStream, timeout time.Duration) (readOnly bool, err error)
}

// securityNone implements security type 1: authentication always succeeds
// and grants full control (cairo-vnc security.py SecurityNone,
// bigangryrobot-avacadovnc security_none.go).
type securityNone struct{}

func (securityNone) Type() SecurityType { return SecurityNoneT }

func (securityNone) Authenticate(stream *ByteStream, timeout time.Duration) (bool, error) {
	return false, nil
}

// securityRegistry holds the security handlers a server instance will
// offer, as chosen by buildSecurityRegistry from the configured passwords.
type securityRegistry struct {
	handlers []SecurityHandler
}

// buildSecurityRegistry assembles the handlers enabled by the given
// passwords, per spec.md §4.4: None is only offered when neither password is
// configured; VNC Authentication is offered whenever either is configured.
func buildSecurityRegistry(password, readOnlyPassword string) *securityRegistry {
	r := &securityRegistry{}
	if password == "" && readOnlyPassword == "" {
		r.handlers = append(r.handlers, securityNone{})
		return r
	}
	r.handlers = append(r.handlers, newSecurityVNCAuth(password, readOnlyPassword))
	return r
}

// Codes returns the enabled security type codes in ascending order, as
// written in the >= 3.7 security-type list.
func (r *securityRegistry) Codes() []uint8 {
	codes := make([]uint8, len(r.handlers))
	for i, h := range r.handlers {
		codes[i] = uint8(h.Type())
	}
	return codes
}

// Select returns the handler for a chosen security type code, or nil if it
// was not offered.
func (r *securityRegistry) Select(code uint8) SecurityHandler {
	for _, h := range r.handlers {
		if uint8(h.Type()) == code {
			return h
		}
	}
	return nil
}

// Preferred returns the handler this server would choose unilaterally for a
// pre-3.7 client: VNC Authentication if enabled, else None (spec.md §4.4).
func (r *securityRegistry) Preferred() SecurityHandler {
	for _, h := range r.handlers {
		if h.Type() == SecurityVNCAuth {
			return h
		}
	}
	for _, h := range r.handlers {
		if h.Type() == SecurityNoneT {
			return h
		}
	}
	return nil
}
