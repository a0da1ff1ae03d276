package cairovnc

import (
	"encoding/binary"
)

// clientMessage describes one entry in the dispatch table: the fixed
// portion of a message's payload (beyond the leading type byte), and the
// handler to invoke with it. SetEncodings and ClientCutText read further
// variable-length bytes themselves once they have their fixed header
// (spec.md §4.5).
type clientMessage struct {
	fixedLen int
	handle   func(c *connection, fixed []byte) error
}

var dispatchTable = map[ClientMessageType]clientMessage{
	ClientMsgSetPixelFormat:           {fixedLen: 3 + PixelFormatLen, handle: (*connection).handleSetPixelFormat},
	ClientMsgSetEncodings:             {fixedLen: 3, handle: (*connection).handleSetEncodings},
	ClientMsgFramebufferUpdateRequest: {fixedLen: 9, handle: (*connection).handleFramebufferUpdateRequest},
	ClientMsgKeyEvent:                 {fixedLen: 7, handle: (*connection).handleKeyEvent},
	ClientMsgPointerEvent:             {fixedLen: 5, handle: (*connection).handlePointerEvent},
	ClientMsgClientCutText:            {fixedLen: 7, handle: (*connection).handleClientCutText},
}

func (c *connection) handleSetPixelFormat(fixed []byte) error {
	pf, err := UnmarshalPixelFormat(fixed[3:])
	if err != nil {
		return err
	}
	conv, err := pf.Converter()
	if err != nil {
		return err
	}
	c.clientFormat = pf
	c.converter = conv
	return nil
}

func (c *connection) handleSetEncodings(fixed []byte) error {
	count := binary.BigEndian.Uint16(fixed[1:3])
	raw, err := c.stream.ReadExact(int(count)*4, c.options.ClientTimeout)
	if err != nil {
		return err
	}
	encodings := make(map[EncodingType]bool, count)
	pushFrames := c.pushFramesMode
	for i := 0; i < int(count); i++ {
		code := EncodingType(int32(binary.BigEndian.Uint32(raw[i*4 : i*4+4])))
		encodings[code] = true
		if code == pseudoEncodingApple1011 {
			pushFrames = true
		}
	}
	c.encodings = encodings
	c.pushFramesMode = pushFrames
	return nil
}

func (c *connection) handleFramebufferUpdateRequest(fixed []byte) error {
	incremental := fixed[0] != 0
	x := int(binary.BigEndian.Uint16(fixed[1:3]))
	y := int(binary.BigEndian.Uint16(fixed[3:5]))
	w := int(binary.BigEndian.Uint16(fixed[5:7]))
	h := int(binary.BigEndian.Uint16(fixed[7:9]))
	c.regions.Add(NewRegionRequest(incremental, x, y, w, h))
	c.framePushed = false
	return nil
}

func (c *connection) handleKeyEvent(fixed []byte) error {
	if c.readOnly {
		return nil
	}
	down := fixed[0] != 0
	key := binary.BigEndian.Uint32(fixed[3:7])
	c.events.Push(NewKeyEvent(key, down))
	return nil
}

func (c *connection) handlePointerEvent(fixed []byte) error {
	if c.readOnly {
		return nil
	}
	buttons := fixed[0]
	x := int(binary.BigEndian.Uint16(fixed[1:3]))
	y := int(binary.BigEndian.Uint16(fixed[3:5]))

	if x != c.lastPointerX || y != c.lastPointerY {
		c.events.Push(NewPointerMoveEvent(x, y, buttons))
	}
	for bit := uint8(0); bit < 8; bit++ {
		mask := uint8(1) << bit
		was := c.lastPointerButtons&mask != 0
		now := buttons&mask != 0
		if was != now {
			c.events.Push(NewPointerClickEvent(x, y, bit, now))
		}
	}
	c.lastPointerX, c.lastPointerY = x, y
	c.lastPointerButtons = buttons
	return nil
}

func (c *connection) handleClientCutText(fixed []byte) error {
	length := binary.BigEndian.Uint32(fixed[3:7])
	text, err := c.stream.ReadExact(int(length), c.options.ClientTimeout)
	if err != nil {
		return err
	}
	if !c.readOnly {
		if c.options.OnClientCutText != nil {
			c.options.OnClientCutText(isoLatin1ToUTF8(text))
		} else {
			c.log.Info("client cut text", "text", isoLatin1ToUTF8(text))
		}
	}
	return nil
}

// isoLatin1ToUTF8 widens each ISO-8859-1 byte to its identical Unicode code
// point, which is what that encoding's bytes mean.
func isoLatin1ToUTF8(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
