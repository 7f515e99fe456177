package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/notify"
)

type fakeChannel struct {
	sent   []notify.Event
	closed bool
	fail   bool
}

func (c *fakeChannel) Send(ctx context.Context, evt notify.Event) error {
	if c.fail {
		return errors.New("write failed")
	}
	c.sent = append(c.sent, evt)
	return nil
}

func (c *fakeChannel) Close() {
	c.closed = true
}

func TestNotifyUserDeliversOnlyToSubscriber(t *testing.T) {
	bus := notify.NewBus()
	aliceCh := &fakeChannel{}
	bobCh := &fakeChannel{}
	bus.Subscribe("alice", aliceCh)
	bus.Subscribe("bob", bobCh)

	bus.NotifyUser("alice", "balance:update", map[string]any{"x": 1})

	require.Len(t, aliceCh.sent, 1)
	require.Equal(t, "balance:update", aliceCh.sent[0].Type)
	require.Len(t, bobCh.sent, 0)
}

func TestNotifyUserDropsFailingChannel(t *testing.T) {
	bus := notify.NewBus()
	ch := &fakeChannel{fail: true}
	bus.Subscribe("alice", ch)

	bus.NotifyUser("alice", "balance:update", nil)

	require.True(t, ch.closed)

	again := &fakeChannel{}
	bus.Subscribe("alice", again)
	bus.NotifyUser("alice", "balance:update", nil)
	require.Len(t, again.sent, 1)
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	bus := notify.NewBus()
	aliceCh := &fakeChannel{}
	bobCh := &fakeChannel{}
	bus.Subscribe("alice", aliceCh)
	bus.Subscribe("bob", bobCh)

	bus.Broadcast("prices:update", map[string]float64{"XEC": 0.00003})

	require.Len(t, aliceCh.sent, 1)
	require.Len(t, bobCh.sent, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := notify.NewBus()
	ch := &fakeChannel{}
	bus.Subscribe("alice", ch)
	bus.Unsubscribe("alice", ch)

	bus.NotifyUser("alice", "balance:update", nil)
	require.Len(t, ch.sent, 0)
}

func TestMultipleChannelsPerUser(t *testing.T) {
	bus := notify.NewBus()
	ch1 := &fakeChannel{}
	ch2 := &fakeChannel{}
	bus.Subscribe("alice", ch1)
	bus.Subscribe("alice", ch2)

	bus.NotifyUser("alice", "loan:ltv:update", nil)

	require.Len(t, ch1.sent, 1)
	require.Len(t, ch2.sent, 1)
}
