package cairovnc

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gerph/cairo-vnc/recording"
)

// recordingConn wraps a net.Conn so outbound bytes also flow through a
// recording.Recorder's tap, while reads and everything else pass straight
// through to the real connection (spec.md §6's FBS-style session capture).
type recordingConn struct {
	net.Conn
	tap recording.WriteCounter
}

func (c *recordingConn) Write(p []byte) (int, error) {
	return c.tap.Write(p)
}

// clientTimeout bounds every read in the active loop's per-tick poll
// (spec.md §4.6's "tick ~= 250ms").
const clientTimeout = 250 * time.Millisecond

// connectTimeout bounds the handshake reads, which are infrequent and can
// afford to wait longer for a slow client.
const connectTimeout = 10 * time.Second

// connection is the per-client state machine: handshake, ServerInit, and
// the active update loop. One goroutine owns one connection end to end
// (spec.md §4.6, §5).
type connection struct {
	server  *Server
	conn    net.Conn
	stream  *ByteStream
	options *ServerOptions
	log     *slog.Logger

	minor int // protocol minor version, e.g. 8 for RFB 003.008

	clientFormat PixelFormat
	converter    RowConverter
	encodings    map[EncodingType]bool
	readOnly     bool

	pushFramesMode bool
	regions        RegionQueue
	events         *EventQueue

	lastPointerX, lastPointerY int
	lastPointerButtons         uint8

	width, height int
	lastRows      [][]byte

	displayChanged bool
	nameChanged    bool
	framePushed    bool

	lastUpdate time.Time
}

func newConnection(srv *Server, netConn net.Conn) *connection {
	if srv.options.Recorder != nil {
		netConn = &recordingConn{Conn: netConn, tap: srv.options.Recorder.Tap(netConn.RemoteAddr().String(), netConn)}
	}
	return &connection{
		server:         srv,
		conn:           netConn,
		stream:         NewByteStream(netConn),
		options:        srv.options,
		log:            srv.options.Logger.With("remote", netConn.RemoteAddr().String()),
		clientFormat:   DefaultPixelFormat,
		converter:      identityConverter{},
		encodings:      map[EncodingType]bool{},
		events:         srv.events,
		pushFramesMode: srv.options.PushRequests,
		readOnly:       srv.options.ReadOnly,
	}
}

// serve drives the connection through every state until the stream closes.
// It never returns an error to its caller; all failures are logged and
// simply end the goroutine, since there is nothing further upstream to
// hand an error to once a client disconnects.
func (c *connection) serve() {
	defer c.stream.Close()

	if err := c.negotiateVersion(); err != nil {
		c.log.Info("version handshake failed", "error", err)
		return
	}
	if err := c.negotiateSecurity(); err != nil {
		c.log.Info("security handshake failed", "error", err)
		return
	}
	if err := c.clientInit(); err != nil {
		c.log.Info("client init failed", "error", err)
		return
	}
	if err := c.serverInit(); err != nil {
		c.log.Info("server init failed", "error", err)
		return
	}

	c.log.Info("client active", "read_only", c.readOnly)
	c.activeLoop()
}

// negotiateVersion implements spec.md §4.6 state 1.
func (c *connection) negotiateVersion() error {
	if err := c.stream.Write([]byte(ProtocolVersion)); err != nil {
		return err
	}
	line, err := c.stream.ReadUntil('\n', connectTimeout)
	if err != nil {
		return err
	}
	version := string(line)
	if !strings.HasPrefix(version, "RFB 003") {
		return newProtoErr(ErrProtocolVersionUnsupported, "unsupported client version %q", version)
	}
	minorStr := strings.TrimPrefix(version, "RFB 003.")
	minor, err := strconv.Atoi(strings.TrimSpace(minorStr))
	if err != nil {
		return newProtoErr(ErrProtocolVersionUnsupported, "unparseable client minor version %q", version)
	}
	c.minor = minor
	return nil
}

// negotiateSecurity implements spec.md §4.4.
func (c *connection) negotiateSecurity() error {
	registry := c.server.security

	var chosen SecurityHandler
	if c.minor >= 7 {
		codes := registry.Codes()
		header := append([]byte{byte(len(codes))}, codes...)
		if err := c.stream.Write(header); err != nil {
			return err
		}
		choice, err := c.stream.ReadExact(1, connectTimeout)
		if err != nil {
			return err
		}
		chosen = registry.Select(choice[0])
		if chosen == nil {
			return c.failSecurity(newProtoErr(ErrSecurityUnavailable, "client chose unsupported security type %d", choice[0]))
		}
	} else {
		chosen = registry.Preferred()
		if chosen == nil {
			return c.failSecurity(newProtoErr(ErrSecurityUnavailable, "no security type available"))
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(chosen.Type()))
		if err := c.stream.Write(buf[:]); err != nil {
			return err
		}
	}

	readOnly, err := chosen.Authenticate(c.stream, connectTimeout)
	if err != nil {
		// err.Error() becomes the wire reason string verbatim (spec.md §8
		// scenario 2), so it is not wrapped in a ProtocolError here.
		return c.failSecurity(err)
	}
	c.readOnly = c.readOnly || readOnly

	// SecurityResult is written for protocol >= 3.8 or any non-None method,
	// regardless of minor version (spec.md §4.4).
	if c.minor >= 8 || chosen.Type() != SecurityNoneT {
		var ok [4]byte
		binary.BigEndian.PutUint32(ok[:], uint32(SecurityResultOK))
		if err := c.stream.Write(ok[:]); err != nil {
			return err
		}
	}
	return nil
}

// failSecurity writes the SecurityResult failure word (and, on 3.8+, the
// reason string) before returning err to the caller, which closes the
// stream.
func (c *connection) failSecurity(err error) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(SecurityResultFailed))
	c.stream.Write(buf[:])
	if c.minor >= 8 {
		reason := []byte(err.Error())
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(reason)))
		c.stream.Write(lenBuf[:])
		c.stream.Write(reason)
	}
	return err
}

// clientInit implements spec.md §4.6 state 3. Exclusive access is logged
// and denied; every connection is treated as shared.
func (c *connection) clientInit() error {
	shared, err := c.stream.ReadExact(1, connectTimeout)
	if err != nil {
		return err
	}
	if shared[0] == 0 {
		c.log.Info("client requested exclusive access; treating as shared")
	}
	return nil
}

// serverInit implements spec.md §4.6 state 4.
func (c *connection) serverInit() error {
	width, height := c.server.snapshots.Size()
	c.width, c.height = width, height
	c.lastRows = make([][]byte, height)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(width))
	binary.Write(&buf, binary.BigEndian, uint16(height))
	buf.Write(DefaultPixelFormat.Marshal())
	name := c.server.DisplayName()
	binary.Write(&buf, binary.BigEndian, uint32(len(name)))
	buf.WriteString(name)

	return c.stream.Write(buf.Bytes())
}

// activeLoop implements spec.md §4.6 state 5.
func (c *connection) activeLoop() {
	c.lastUpdate = time.Now()
	for !c.stream.Closed() {
		deadline := c.nextDeadline()
		msgType, err := c.stream.ReadExact(1, deadline)
		if err != nil {
			if err != ErrStreamTimeout {
				return
			}
		} else {
			if err := c.dispatch(ClientMessageType(msgType[0])); err != nil {
				c.log.Info("message handling failed", "error", err)
				return
			}
		}
		c.checkChangeFlags()
		c.drainUpdatesIfDue()
	}
}

func (c *connection) nextDeadline() time.Duration {
	minPeriod := time.Second / time.Duration(c.options.effectiveMaxFramerate())
	elapsed := time.Since(c.lastUpdate)
	untilNext := minPeriod - elapsed
	if untilNext < 0 {
		untilNext = 0
	}
	if untilNext < clientTimeout {
		return untilNext
	}
	return clientTimeout
}

func (c *connection) dispatch(msgType ClientMessageType) error {
	entry, ok := dispatchTable[msgType]
	if !ok {
		return newProtoErr(ErrUnknownMessageType, "unknown client message type %d", msgType)
	}
	c.log.Debug("client message", "type", msgType)
	fixed, err := c.stream.ReadExact(entry.fixedLen, c.options.ClientTimeout)
	if err != nil {
		return err
	}
	return entry.handle(c, fixed)
}

func (c *connection) checkChangeFlags() {
	if c.framePushed && c.pushFramesMode && c.regions.Len() == 0 && c.minFramePeriodElapsed() {
		c.regions.Add(NewRegionRequest(false, 0, 0, c.width, c.height))
	}

	if c.displayChanged {
		c.displayChanged = false
		newWidth, newHeight := c.server.snapshots.Size()
		if newWidth != c.width || newHeight != c.height {
			if c.encodings[PseudoEncodingDesktopSize] {
				c.sendDesktopSizeRect(newWidth, newHeight)
				c.lastRows = make([][]byte, newHeight)
				c.regions = RegionQueue{}
				c.regions.Add(NewRegionRequest(false, 0, 0, newWidth, newHeight))
			} else {
				c.log.Info("display resized but client lacks DesktopSize capability")
			}
			c.width, c.height = newWidth, newHeight
		}
	}

	if c.nameChanged {
		c.nameChanged = false
		if c.encodings[PseudoEncodingDesktopName] {
			c.sendDesktopNameRect(c.server.DisplayName())
		}
	}
}

func (c *connection) minFramePeriodElapsed() bool {
	minPeriod := time.Second / time.Duration(c.options.effectiveMaxFramerate())
	return time.Since(c.lastUpdate) >= minPeriod
}

func (c *connection) drainUpdatesIfDue() {
	if !c.minFramePeriodElapsed() {
		return
	}
	for {
		req, ok := c.regions.Pop()
		if !ok {
			return
		}
		c.updateFramebuffer(req)
		c.lastUpdate = time.Now()
	}
}

// sendDesktopSizeRect emits a single pseudo-rectangle notifying the client
// of a new framebuffer size (spec.md §4.6).
func (c *connection) sendDesktopSizeRect(width, height int) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ServerMsgFramebufferUpdate))
	buf.WriteByte(0)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	writeRectHeader(&buf, 0, 0, width, height, PseudoEncodingDesktopSize)
	c.stream.Write(buf.Bytes())
}

// sendDesktopNameRect emits a DesktopName pseudo-rectangle (spec.md §4.6).
func (c *connection) sendDesktopNameRect(name string) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ServerMsgFramebufferUpdate))
	buf.WriteByte(0)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	writeRectHeader(&buf, 0, 0, 0, 0, PseudoEncodingDesktopName)
	binary.Write(&buf, binary.BigEndian, uint32(len(name)))
	buf.WriteString(name)
	c.stream.Write(buf.Bytes())
}

func writeRectHeader(buf *bytes.Buffer, x, y, w, h int, encoding EncodingType) {
	binary.Write(buf, binary.BigEndian, uint16(x))
	binary.Write(buf, binary.BigEndian, uint16(y))
	binary.Write(buf, binary.BigEndian, uint16(w))
	binary.Write(buf, binary.BigEndian, uint16(h))
	binary.Write(buf, binary.BigEndian, int32(encoding))
}

// updateFramebuffer implements the framebuffer update algorithm of spec.md
// §4.6: always Raw encoding, rows grouped into maximal runs of difference
// for incremental requests, the whole requested height for non-incremental
// ones.
func (c *connection) updateFramebuffer(req RegionRequest) {
	snap, err := c.server.snapshots.Data()
	if err != nil {
		c.log.Info("snapshot capture failed", "error", err)
		return
	}
	clipped, ok := req.Clip(snap.Width, snap.Height)
	if !ok {
		c.writeRuns(snap, nil)
		return
	}

	var runs [][2]int // [start, count)
	if !req.Incremental {
		runs = [][2]int{{clipped.Y, clipped.H}}
	} else {
		diffStart := -1
		for y := clipped.Y; y < clipped.Y1; y++ {
			if y >= len(snap.Rows) {
				continue
			}
			var last []byte
			if y < len(c.lastRows) {
				last = c.lastRows[y]
			}
			changed := last == nil || !sameRow(snap.Rows[y], last)
			if changed {
				if diffStart == -1 {
					diffStart = y
				}
			} else if diffStart != -1 {
				runs = append(runs, [2]int{diffStart, y - diffStart})
				diffStart = -1
			}
		}
		if diffStart != -1 {
			runs = append(runs, [2]int{diffStart, clipped.Y1 - diffStart})
		}
	}

	c.writeRuns(snap, runs)
}

func sameRow(a, b []byte) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return &a[0] == &b[0] || bytes.Equal(a, b)
}

func (c *connection) writeRuns(snap Snapshot, runs [][2]int) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ServerMsgFramebufferUpdate))
	buf.WriteByte(0)
	binary.Write(&buf, binary.BigEndian, uint16(len(runs)))

	for _, run := range runs {
		start, count := run[0], run[1]
		writeRectHeader(&buf, 0, start, snap.Width, count, EncodingRaw)
		for y := start; y < start+count; y++ {
			buf.Write(c.converter.Convert(snap.Rows[y]))
			if y < len(c.lastRows) {
				c.lastRows[y] = snap.Rows[y]
			}
		}
	}

	c.stream.Write(buf.Bytes())
}
