package cairovnc

// ProtocolVersion is the version string this server advertises during the
// ProtocolVersion handshake (spec.md §4.6 state 1).
const ProtocolVersion = "RFB 003.008\n"

// SecurityType identifies an RFB security/authentication scheme.
type SecurityType uint8

const (
	SecurityInvalid SecurityType = 0
	SecurityNoneT   SecurityType = 1
	SecurityVNCAuth SecurityType = 2
)

// SecurityResult is the outcome written at the end of the security handshake.
type SecurityResult uint32

const (
	SecurityResultOK     SecurityResult = 0
	SecurityResultFailed SecurityResult = 1
)

// ClientMessageType identifies a client-to-server message (spec.md §4.5).
type ClientMessageType uint8

const (
	ClientMsgSetPixelFormat           ClientMessageType = 0
	ClientMsgSetEncodings             ClientMessageType = 2
	ClientMsgFramebufferUpdateRequest ClientMessageType = 3
	ClientMsgKeyEvent                 ClientMessageType = 4
	ClientMsgPointerEvent             ClientMessageType = 5
	ClientMsgClientCutText            ClientMessageType = 6
)

// ServerMessageType identifies a server-to-client message.
type ServerMessageType uint8

const (
	ServerMsgFramebufferUpdate  ServerMessageType = 0
	ServerMsgSetColourMapEntries ServerMessageType = 1
	ServerMsgBell               ServerMessageType = 2
	ServerMsgServerCutText      ServerMessageType = 3
)

// EncodingType identifies a framebuffer rectangle encoding or pseudo-encoding.
// Pseudo-encodings are negative, as RFC 6143 reserves that range for them.
type EncodingType int32

const (
	EncodingRaw EncodingType = 0

	// PseudoEncodingDesktopSize notifies the client that the framebuffer was
	// resized; the new size travels in the rectangle header itself.
	PseudoEncodingDesktopSize EncodingType = -223
	// PseudoEncodingDesktopName notifies the client of a new desktop name.
	PseudoEncodingDesktopName EncodingType = -307
	// pseudoEncodingApple1011 is a vendor pseudo-encoding some clients
	// advertise; its presence is (ab)used here as an opt-in signal for
	// push-frames mode (spec.md §4.6, §9).
	pseudoEncodingApple1011 EncodingType = -1011
)

// PixelFormatLen is the wire size, in bytes, of the PixelFormat descriptor
// (spec.md §4.2).
const PixelFormatLen = 16
