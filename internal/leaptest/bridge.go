package leaptest

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/leap-protocol/leap-go/pkg/wire"
)

// zoneState is the fake bridge's mutable state for one zone.
type zoneState struct {
	level    *int
	switched string
}

// Bridge is an in-process fake control port: a TLS listener that
// speaks CRLF-delimited JSON, serves the enumeration URLs, applies
// zone commands, and pushes subscription events.
type Bridge struct {
	authority *Authority
	listener  net.Listener

	mu      sync.Mutex
	devices []wire.Device
	scenes  []wire.VirtualButton
	zones   map[string]*zoneState
	conns   map[net.Conn]bool

	// RequestHook, when set, intercepts every request before the
	// built-in dispatch. Returning nil falls through.
	RequestHook func(msg *wire.Message) *wire.Message

	closed bool
	wg     sync.WaitGroup
}

// NewBridge starts a fake bridge on a loopback port.
func NewBridge(authority *Authority) (*Bridge, error) {
	tlsConfig, err := authority.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		authority: authority,
		listener:  tls.NewListener(listener, tlsConfig),
		zones:     make(map[string]*zoneState),
		conns:     make(map[net.Conn]bool),
	}

	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Addr returns the listener address (host:port).
func (b *Bridge) Addr() string {
	return b.listener.Addr().String()
}

// Close stops the listener and drops every connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	err := b.listener.Close()
	b.DropConnections()
	b.wg.Wait()
	return err
}

// AddDimmer registers a dimmable device with an initial level.
func (b *Bridge) AddDimmer(id, name, zoneID string, level int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, wire.Device{
		Href:       wire.Href{Href: "/device/" + id},
		Name:       name,
		DeviceType: "WallDimmer",
		LocalZones: []wire.Href{{Href: "/zone/" + zoneID}},
	})
	lvl := level
	b.zones[zoneID] = &zoneState{level: &lvl}
}

// AddSwitch registers a switched device.
func (b *Bridge) AddSwitch(id, name, zoneID string, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, wire.Device{
		Href:       wire.Href{Href: "/device/" + id},
		Name:       name,
		DeviceType: "WallSwitch",
		LocalZones: []wire.Href{{Href: "/zone/" + zoneID}},
	})
	switched := wire.SwitchedLevelOff
	if on {
		switched = wire.SwitchedLevelOn
	}
	b.zones[zoneID] = &zoneState{switched: switched}
}

// AddBridgeDevice registers the bridge's own device record, which
// real bridges include in every enumeration.
func (b *Bridge) AddBridgeDevice() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, wire.Device{
		Href:       wire.Href{Href: "/device/1"},
		Name:       "Smart Bridge",
		DeviceType: "SmartBridge",
	})
}

// AddScene registers a programmed virtual button.
func (b *Bridge) AddScene(id, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes = append(b.scenes, wire.VirtualButton{
		Href:         wire.Href{Href: "/virtualbutton/" + id},
		Name:         name,
		IsProgrammed: true,
	})
}

// PushZoneLevel sets a zone's level and broadcasts the change as an
// untagged subscription event to every connection.
func (b *Bridge) PushZoneLevel(zoneID string, level int) {
	b.mu.Lock()
	if zs, ok := b.zones[zoneID]; ok {
		lvl := level
		zs.level = &lvl
		zs.switched = ""
	}
	b.mu.Unlock()
	b.broadcastZone(zoneID)
}

// PushZoneSwitched sets a switched zone's state and broadcasts it.
func (b *Bridge) PushZoneSwitched(zoneID string, on bool) {
	b.mu.Lock()
	if zs, ok := b.zones[zoneID]; ok {
		zs.level = nil
		zs.switched = wire.SwitchedLevelOff
		if on {
			zs.switched = wire.SwitchedLevelOn
		}
	}
	b.mu.Unlock()
	b.broadcastZone(zoneID)
}

// DropConnections abruptly closes every live connection, simulating
// bridge-side failure.
func (b *Bridge) DropConnections() {
	b.mu.Lock()
	conns := make([]net.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.conns = make(map[net.Conn]bool)
	b.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (b *Bridge) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.conns[conn] = true
		b.mu.Unlock()

		b.wg.Add(1)
		go b.handleConn(conn)
	}
}

func (b *Bridge) handleConn(conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}

		var msg wire.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		resp := b.dispatch(&msg)
		if resp == nil {
			continue
		}
		if err := b.writeMessage(conn, resp); err != nil {
			return
		}
	}
}

func (b *Bridge) writeMessage(conn net.Conn, msg *wire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\r', '\n'))
	return err
}

func (b *Bridge) dispatch(msg *wire.Message) *wire.Message {
	if hook := b.RequestHook; hook != nil {
		if resp := hook(msg); resp != nil {
			return resp
		}
	}

	url := msg.Header.URL
	switch {
	case msg.CommuniqueType == wire.CommuniqueReadRequest && url == "/device":
		b.mu.Lock()
		body := wire.DevicesBody{Devices: append([]wire.Device(nil), b.devices...)}
		b.mu.Unlock()
		return response(msg, wire.CommuniqueReadResponse, wire.StatusOK, body)

	case msg.CommuniqueType == wire.CommuniqueReadRequest && url == "/virtualbutton":
		b.mu.Lock()
		body := wire.VirtualButtonsBody{VirtualButtons: append([]wire.VirtualButton(nil), b.scenes...)}
		b.mu.Unlock()
		return response(msg, wire.CommuniqueReadResponse, wire.StatusOK, body)

	case msg.CommuniqueType == wire.CommuniqueSubscribeRequest && strings.HasSuffix(url, "/status"):
		zoneID := zoneIDFromURL(url)
		b.mu.Lock()
		zs, ok := b.zones[zoneID]
		var body any
		if ok {
			body = wire.ZoneStatusBody{ZoneStatus: zoneStatus(zoneID, zs)}
		}
		b.mu.Unlock()
		if !ok {
			return response(msg, wire.CommuniqueExceptionResponse, wire.StatusNotFound, nil)
		}
		return response(msg, wire.CommuniqueSubscribeResponse, wire.StatusOK, body)

	case msg.CommuniqueType == wire.CommuniqueCreateRequest && strings.HasSuffix(url, "/commandprocessor"):
		return b.handleCommand(msg)

	default:
		return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
	}
}

func (b *Bridge) handleCommand(msg *wire.Message) *wire.Message {
	var body wire.CommandBody
	if err := msg.DecodeBody(&body); err != nil {
		return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
	}

	url := msg.Header.URL
	if strings.HasPrefix(url, "/virtualbutton/") {
		if body.Command.CommandType != wire.CommandPressAndRelease {
			return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
		}
		return response(msg, wire.CommuniqueCreateResponse, wire.StatusNoContent, nil)
	}

	zoneID := zoneIDFromURL(url)
	b.mu.Lock()
	zs, ok := b.zones[zoneID]
	if !ok {
		b.mu.Unlock()
		return response(msg, wire.CommuniqueExceptionResponse, wire.StatusNotFound, nil)
	}

	switch body.Command.CommandType {
	case wire.CommandGoToLevel:
		level, ok := commandInt(body.Command, "Level")
		if !ok {
			b.mu.Unlock()
			return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
		}
		zs.level = &level
		zs.switched = ""
	case wire.CommandGoToSwitchedLevel:
		switched, ok := commandString(body.Command, "SwitchedLevel")
		if !ok {
			b.mu.Unlock()
			return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
		}
		zs.level = nil
		zs.switched = switched
	default:
		b.mu.Unlock()
		return response(msg, wire.CommuniqueExceptionResponse, wire.StatusBadRequest, nil)
	}
	ack := zoneStatus(zoneID, zs)
	b.mu.Unlock()

	return response(msg, wire.CommuniqueCreateResponse, wire.StatusCreated, wire.ZoneStatusBody{ZoneStatus: ack})
}

// broadcastZone sends the zone's current status to every connection
// as an untagged event.
func (b *Bridge) broadcastZone(zoneID string) {
	b.mu.Lock()
	zs, ok := b.zones[zoneID]
	if !ok {
		b.mu.Unlock()
		return
	}
	status := wire.StatusOK
	event := &wire.Message{
		CommuniqueType: wire.CommuniqueReadResponse,
		Header: wire.Header{
			URL:        wire.ZoneStatusURL(zoneID),
			StatusCode: &status,
		},
	}
	data, _ := json.Marshal(wire.ZoneStatusBody{ZoneStatus: zoneStatus(zoneID, zs)})
	event.Body = data

	conns := make([]net.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		_ = b.writeMessage(conn, event)
	}
}

func zoneStatus(zoneID string, zs *zoneState) wire.ZoneStatus {
	status := wire.ZoneStatus{
		Href: wire.Href{Href: wire.ZoneStatusURL(zoneID)},
		Zone: wire.Href{Href: "/zone/" + zoneID},
	}
	if zs.level != nil {
		lvl := *zs.level
		status.Level = &lvl
	}
	status.SwitchedLevel = zs.switched
	return status
}

// zoneIDFromURL extracts "<id>" from "/zone/<id>/...".
func zoneIDFromURL(url string) string {
	parts := strings.Split(strings.Trim(url, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

func commandInt(cmd wire.Command, paramType string) (int, bool) {
	for _, p := range cmd.Parameter {
		if p.Type != paramType {
			continue
		}
		switch v := p.Value.(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		}
	}
	return 0, false
}

func commandString(cmd wire.Command, paramType string) (string, bool) {
	for _, p := range cmd.Parameter {
		if p.Type == paramType {
			if s, ok := p.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// response builds a tagged reply to msg.
func response(msg *wire.Message, ct wire.CommuniqueType, status wire.Status, body any) *wire.Message {
	resp := &wire.Message{
		CommuniqueType: ct,
		Header: wire.Header{
			ClientTag:  msg.Tag(),
			URL:        msg.Header.URL,
			StatusCode: &status,
		},
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("leaptest: marshal response body: %v", err))
		}
		resp.Body = data
	}
	return resp
}
