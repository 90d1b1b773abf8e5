package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leap-protocol/leap-go/internal/leaptest"
	"github.com/leap-protocol/leap-go/pkg/catalog"
	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/transport"
	"github.com/leap-protocol/leap-go/pkg/wire"
)

// newTestBridge starts a fake bridge with a paired credential store
// and the standard fixture set.
func newTestBridge(t *testing.T) (*Bridge, *leaptest.Bridge) {
	t.Helper()

	authority, err := leaptest.NewAuthority()
	require.NoError(t, err)
	fake, err := leaptest.NewBridge(authority)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fake.Close() })

	fake.AddBridgeDevice()
	fake.AddDimmer("2", "Kitchen", "1", 60)
	fake.AddSwitch("3", "Porch", "2", false)
	fake.AddScene("5", "Movie Night")

	credential, err := authority.ClientCredential()
	require.NoError(t, err)
	store := cert.NewMemoryStore()
	require.NoError(t, store.Save(cert.Identity{Address: "127.0.0.1"}, credential))

	b, err := New(Config{
		Address:        fake.Addr(),
		Store:          store,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b, fake
}

func waitForLevel(t *testing.T, b *Bridge, idOrName string, level int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		dev, err := b.GetDeviceState(idOrName)
		if err == nil && dev.State.Level == level {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("device %q never reached level %d (last: %+v, err: %v)", idOrName, level, dev, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectAndList(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, b.Connected())

	devices, err := b.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2, "the bridge's own record is filtered")
	assert.Equal(t, "Kitchen", devices[0].Name)
	assert.Equal(t, catalog.KindDimmer, devices[0].Kind)
	assert.Equal(t, 60, devices[0].State.Level)
	assert.Equal(t, "Porch", devices[1].Name)
	assert.False(t, devices[1].State.On)

	scenes, err := b.ListScenes()
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "Movie Night", scenes[0].Name)
}

func TestNotConnected(t *testing.T) {
	b, _ := newTestBridge(t)

	_, err := b.ListDevices()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = b.GetDeviceState("Kitchen")
	assert.ErrorIs(t, err, ErrNotConnected)
	err = b.TurnOn(context.Background(), "Kitchen")
	assert.ErrorIs(t, err, ErrNotConnected)
	err = b.ActivateScene(context.Background(), "Movie Night")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectNotPaired(t *testing.T) {
	authority, err := leaptest.NewAuthority()
	require.NoError(t, err)
	fake, err := leaptest.NewBridge(authority)
	require.NoError(t, err)
	defer fake.Close()

	b, err := New(Config{Address: fake.Addr(), Store: cert.NewMemoryStore()})
	require.NoError(t, err)

	err = b.Connect(context.Background())
	assert.ErrorIs(t, err, cert.ErrNotPaired)
}

func TestTurnOffByName(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	// Case-insensitive name resolution, then an acknowledged write.
	require.NoError(t, b.TurnOff(context.Background(), "kitchen"))

	dev, err := b.GetDeviceState("Kitchen")
	require.NoError(t, err)
	assert.False(t, dev.State.On)
	assert.Equal(t, 0, dev.State.Level)
}

func TestSetBrightness(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	require.NoError(t, b.SetBrightness(context.Background(), "Kitchen", 35))

	dev, err := b.GetDeviceState("Kitchen")
	require.NoError(t, err)
	assert.Equal(t, 35, dev.State.Level)
	assert.True(t, dev.State.On)
}

func TestSetBrightnessValidation(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	err := b.SetBrightness(context.Background(), "Kitchen", 150)
	assert.ErrorIs(t, err, catalog.ErrInvalidArgument)
	err = b.SetBrightness(context.Background(), "Kitchen", -5)
	assert.ErrorIs(t, err, catalog.ErrInvalidArgument)

	// The cache still holds the enumerated level.
	dev, err := b.GetDeviceState("Kitchen")
	require.NoError(t, err)
	assert.Equal(t, 60, dev.State.Level)
}

func TestSwitchOnOff(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	require.NoError(t, b.TurnOn(context.Background(), "Porch"))
	dev, err := b.GetDeviceState("Porch")
	require.NoError(t, err)
	assert.True(t, dev.State.On)

	require.NoError(t, b.TurnOff(context.Background(), "Porch"))
	dev, err = b.GetDeviceState("Porch")
	require.NoError(t, err)
	assert.False(t, dev.State.On)
}

func TestSubscriptionEventUpdatesState(t *testing.T) {
	b, fake := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	// Someone dims the zone at the wall; the event flows through the
	// subscription without any request in flight.
	fake.PushZoneLevel("1", 25)
	waitForLevel(t, b, "Kitchen", 25)

	// Last event wins.
	fake.PushZoneLevel("1", 80)
	fake.PushZoneLevel("1", 0)
	waitForLevel(t, b, "Kitchen", 0)

	dev, err := b.GetDeviceState("Kitchen")
	require.NoError(t, err)
	assert.False(t, dev.State.On)
}

func TestActivateSceneByName(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	require.NoError(t, b.ActivateScene(context.Background(), "movie"))

	err := b.ActivateScene(context.Background(), "dinner")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestUnknownDevice(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	_, err := b.GetDeviceState("Bedroom")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	err = b.TurnOn(context.Background(), "Bedroom")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestConnectionLossFailsOutstandingRequests(t *testing.T) {
	b, fake := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))

	disconnected := make(chan error, 1)
	b.OnDisconnect(func(err error) { disconnected <- err })

	// Stall command handling so two requests are outstanding when
	// the bridge drops the connection.
	fake.RequestHook = func(msg *wire.Message) *wire.Message {
		if msg.CommuniqueType == wire.CommuniqueCreateRequest {
			time.Sleep(2 * time.Second)
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"Kitchen", "Porch"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			errs <- b.TurnOn(context.Background(), name)
		}(name)
	}

	time.Sleep(100 * time.Millisecond)
	fake.DropConnections()
	wg.Wait()

	for i := 0; i < 2; i++ {
		err := <-errs
		assert.ErrorIs(t, err, transport.ErrConnectionLost, "outstanding request %d", i)
	}

	select {
	case err := <-disconnected:
		assert.ErrorIs(t, err, transport.ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback never fired")
	}

	assert.False(t, b.Connected())
	_, err := b.ListDevices()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.False(t, b.Connected())
}
