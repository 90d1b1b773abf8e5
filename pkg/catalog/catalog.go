package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leap-protocol/leap-go/pkg/interaction"
	"github.com/leap-protocol/leap-go/pkg/wire"
)

// Catalog errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrAmbiguousName   = errors.New("ambiguous name")
)

// Requester issues correlated LEAP requests. *interaction.Client
// satisfies it.
type Requester interface {
	Request(ctx context.Context, ct wire.CommuniqueType, url string, body any) (*wire.Message, error)
}

// Catalog caches device and scene inventory with last-known states.
type Catalog struct {
	requester Requester

	mu        sync.RWMutex
	devices   map[string]*Device
	scenes    map[string]*Scene
	zoneIndex map[string]string // zone id -> device id
	stale     bool

	// While a Refresh is building its replacement maps, events keep
	// arriving on the reader goroutine. They are held here in receipt
	// order and replayed onto the new maps at install, so an event
	// newer than a zone's priming value is never lost.
	refreshing bool
	backlog    []wire.ZoneStatus
}

// New creates an empty catalog that issues requests through r.
func New(r Requester) *Catalog {
	return &Catalog{
		requester: r,
		devices:   make(map[string]*Device),
		scenes:    make(map[string]*Scene),
		zoneIndex: make(map[string]string),
		stale:     true,
	}
}

// Refresh re-enumerates devices, scenes and zone states, then
// subscribes to every zone. The cache is replaced wholesale on
// success and left untouched on error. Events received while the
// refresh is in flight are buffered and replayed after the new maps
// install, so they win over the priming values they postdate.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshing = true
	c.backlog = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		// On the error path the old maps stay in place; events that
		// arrived mid-refresh still belong to them.
		if c.refreshing {
			for _, zs := range c.backlog {
				c.applyZoneStatusLocked(zs)
			}
		}
		c.refreshing = false
		c.backlog = nil
		c.mu.Unlock()
	}()

	devices, zoneIndex, err := c.enumerateDevices(ctx)
	if err != nil {
		return err
	}
	scenes, err := c.enumerateScenes(ctx)
	if err != nil {
		return err
	}

	// Seed state and subscribe per zone. The subscribe response is
	// the priming read: it carries the current zone status.
	for _, dev := range devices {
		if dev.ZoneID == "" {
			continue
		}
		status, err := c.subscribeZone(ctx, dev.ZoneID)
		if err != nil {
			return err
		}
		if status != nil {
			dev.State = stateFromZoneStatus(*status)
		}
	}

	c.mu.Lock()
	c.devices = devices
	c.scenes = scenes
	c.zoneIndex = zoneIndex
	for _, zs := range c.backlog {
		c.applyZoneStatusLocked(zs)
	}
	c.backlog = nil
	c.refreshing = false
	c.stale = false
	c.mu.Unlock()
	return nil
}

func (c *Catalog) enumerateDevices(ctx context.Context) (map[string]*Device, map[string]string, error) {
	resp, err := c.requester.Request(ctx, wire.CommuniqueReadRequest, "/device", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if err := interaction.CheckStatus(resp, "/device"); err != nil {
		return nil, nil, err
	}

	var body wire.DevicesBody
	if err := resp.DecodeBody(&body); err != nil {
		return nil, nil, err
	}

	devices := make(map[string]*Device)
	zoneIndex := make(map[string]string)
	for _, wd := range body.Devices {
		kind := classifyDeviceType(wd.DeviceType)
		// The bridge's own record and zoneless device types are not
		// controllable and stay out of the catalog.
		if kind == KindBridge || kind == KindUnknown {
			continue
		}
		if len(wd.LocalZones) == 0 {
			continue
		}
		dev := &Device{
			ID:     wd.Href.ID(),
			Name:   wd.DisplayName(),
			Kind:   kind,
			ZoneID: wd.LocalZones[0].ID(),
		}
		devices[dev.ID] = dev
		zoneIndex[dev.ZoneID] = dev.ID
	}
	return devices, zoneIndex, nil
}

func (c *Catalog) enumerateScenes(ctx context.Context) (map[string]*Scene, error) {
	resp, err := c.requester.Request(ctx, wire.CommuniqueReadRequest, "/virtualbutton", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate scenes: %w", err)
	}
	if err := interaction.CheckStatus(resp, "/virtualbutton"); err != nil {
		return nil, err
	}

	var body wire.VirtualButtonsBody
	if err := resp.DecodeBody(&body); err != nil {
		return nil, err
	}

	scenes := make(map[string]*Scene)
	for _, vb := range body.VirtualButtons {
		if !vb.IsProgrammed {
			continue
		}
		scenes[vb.Href.ID()] = &Scene{ID: vb.Href.ID(), Name: vb.Name}
	}
	return scenes, nil
}

func (c *Catalog) subscribeZone(ctx context.Context, zoneID string) (*wire.ZoneStatus, error) {
	url := wire.ZoneStatusURL(zoneID)
	resp, err := c.requester.Request(ctx, wire.CommuniqueSubscribeRequest, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to zone %s: %w", zoneID, err)
	}
	if err := interaction.CheckStatus(resp, url); err != nil {
		return nil, err
	}

	var body wire.ZoneStatusBody
	if err := resp.DecodeBody(&body); err != nil {
		// Some bridges answer a subscribe with an empty body; the
		// first event fills the state in.
		return nil, nil
	}
	return &body.ZoneStatus, nil
}

// HandleEvent applies a subscription event to the cache. Events must
// be delivered in receipt order; the reader loop's serial dispatch
// guarantees that. Events for unknown zones are ignored.
func (c *Catalog) HandleEvent(msg *wire.Message) {
	var body wire.ZoneStatusBody
	if err := msg.DecodeBody(&body); err == nil && body.ZoneStatus.Zone.Href != "" {
		c.applyZoneStatus(body.ZoneStatus)
		return
	}

	var multi wire.MultipleZoneStatusBody
	if err := msg.DecodeBody(&multi); err == nil {
		for _, zs := range multi.ZoneStatus {
			c.applyZoneStatus(zs)
		}
	}
}

func (c *Catalog) applyZoneStatus(zs wire.ZoneStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshing {
		c.backlog = append(c.backlog, zs)
		return
	}
	c.applyZoneStatusLocked(zs)
}

func (c *Catalog) applyZoneStatusLocked(zs wire.ZoneStatus) {
	devID, ok := c.zoneIndex[zs.Zone.ID()]
	if !ok {
		return
	}
	c.devices[devID].State = stateFromZoneStatus(zs)
}

func stateFromZoneStatus(zs wire.ZoneStatus) State {
	if zs.Level != nil {
		return State{On: *zs.Level > 0, Level: *zs.Level}
	}
	on := zs.SwitchedLevel == wire.SwitchedLevelOn
	return State{On: on}
}

// Devices returns a snapshot of all devices sorted by name.
func (c *Catalog) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, 0, len(c.devices))
	for _, dev := range c.devices {
		out = append(out, *dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scenes returns a snapshot of all scenes sorted by name.
func (c *Catalog) Scenes() []Scene {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Scene, 0, len(c.scenes))
	for _, sc := range c.scenes {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the device with the given id.
func (c *Catalog) Get(id string) (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev, ok := c.devices[id]
	if !ok {
		return Device{}, fmt.Errorf("device %q: %w", id, ErrNotFound)
	}
	return *dev, nil
}

// Resolve maps an id or human-readable name to a device. Resolution
// order: exact id, case-insensitive exact name, unique
// case-insensitive name prefix. Multiple prefix matches are rejected
// rather than guessed at.
func (c *Catalog) Resolve(idOrName string) (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if dev, ok := c.devices[idOrName]; ok {
		return *dev, nil
	}

	needle := strings.ToLower(idOrName)
	var matches []*Device
	for _, dev := range c.devices {
		name := strings.ToLower(dev.Name)
		if name == needle {
			return *dev, nil
		}
		if strings.HasPrefix(name, needle) {
			matches = append(matches, dev)
		}
	}

	switch len(matches) {
	case 0:
		return Device{}, fmt.Errorf("device %q: %w", idOrName, ErrNotFound)
	case 1:
		return *matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, dev := range matches {
			names[i] = dev.Name
		}
		sort.Strings(names)
		return Device{}, fmt.Errorf("device %q matches %s: %w",
			idOrName, strings.Join(names, ", "), ErrAmbiguousName)
	}
}

// ResolveScene maps an id or name to a scene, with the same
// resolution order as Resolve.
func (c *Catalog) ResolveScene(idOrName string) (Scene, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sc, ok := c.scenes[idOrName]; ok {
		return *sc, nil
	}

	needle := strings.ToLower(idOrName)
	var matches []*Scene
	for _, sc := range c.scenes {
		name := strings.ToLower(sc.Name)
		if name == needle {
			return *sc, nil
		}
		if strings.HasPrefix(name, needle) {
			matches = append(matches, sc)
		}
	}

	switch len(matches) {
	case 0:
		return Scene{}, fmt.Errorf("scene %q: %w", idOrName, ErrNotFound)
	case 1:
		return *matches[0], nil
	default:
		return Scene{}, fmt.Errorf("scene %q: %w", idOrName, ErrAmbiguousName)
	}
}

// SetState issues a state write for the device and, on
// acknowledgment, updates the cache to the acknowledged value. Levels
// outside 0-100 are rejected before anything is sent.
func (c *Catalog) SetState(ctx context.Context, id string, desired State) error {
	if desired.Level < 0 || desired.Level > 100 {
		return fmt.Errorf("level %d out of range 0-100: %w", desired.Level, ErrInvalidArgument)
	}

	c.mu.RLock()
	dev, ok := c.devices[id]
	if !ok {
		c.mu.RUnlock()
		return fmt.Errorf("device %q: %w", id, ErrNotFound)
	}
	kind := dev.Kind
	zoneID := dev.ZoneID
	c.mu.RUnlock()

	var body wire.CommandBody
	switch kind {
	case KindSwitch:
		body = wire.GoToSwitchedLevelBody(desired.On)
	default:
		level := desired.Level
		if !desired.On {
			level = 0
		}
		body = wire.GoToLevelBody(level)
		desired.Level = level
		desired.On = level > 0
	}

	url := wire.ZoneCommandURL(zoneID)
	resp, err := c.requester.Request(ctx, wire.CommuniqueCreateRequest, url, body)
	if err != nil {
		return err
	}
	if err := interaction.CheckStatus(resp, url); err != nil {
		return err
	}

	// Prefer the acknowledged status over the requested value in
	// case the bridge clamped the level.
	acked := desired
	var ackBody wire.ZoneStatusBody
	if err := resp.DecodeBody(&ackBody); err == nil && (ackBody.ZoneStatus.Level != nil || ackBody.ZoneStatus.SwitchedLevel != "") {
		acked = stateFromZoneStatus(ackBody.ZoneStatus)
	}

	c.mu.Lock()
	if dev, ok := c.devices[id]; ok {
		dev.State = acked
	}
	c.mu.Unlock()
	return nil
}

// ActivateScene presses and releases the scene's virtual button.
func (c *Catalog) ActivateScene(ctx context.Context, id string) error {
	c.mu.RLock()
	_, ok := c.scenes[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scene %q: %w", id, ErrNotFound)
	}

	url := wire.SceneCommandURL(id)
	resp, err := c.requester.Request(ctx, wire.CommuniqueCreateRequest, url, wire.PressAndReleaseBody())
	if err != nil {
		return err
	}
	return interaction.CheckStatus(resp, url)
}

// MarkStale flags the cache as no longer backed by a live
// subscription. Called on transport loss.
func (c *Catalog) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Stale reports whether the cache has been invalidated since the last
// successful Refresh.
func (c *Catalog) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}
