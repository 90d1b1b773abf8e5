// Package catalog caches the bridge's device and scene inventory.
//
// The catalog is populated by Refresh, which enumerates devices,
// scenes and zone states and subscribes to every zone so future state
// changes arrive as subscription events. HandleEvent applies those
// events in receipt order; the entry for a device always reflects
// either the last full enumeration or a strictly newer event for that
// device.
//
// State writes go through SetState, which validates locally, issues
// the zone command, and on acknowledgment stores the acknowledged
// value rather than the requested one (the bridge may clamp levels).
package catalog
