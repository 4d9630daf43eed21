package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

func TestPublisherSignal_InMemoryBus(t *testing.T) {
	bus, err := BuildBus(Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	require.Equal(t, DefaultTopic, bus.Topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan SignalPayload, 1)
	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		ch, err := bus.Subscriber.Subscribe(ctx, bus.Topic)
		close(ready)
		if err != nil {
			done <- err
			return
		}
		msg := <-ch
		msg.Ack()
		var p SignalPayload
		done <- json.Unmarshal(msg.Payload, &p)
		got <- p
	}()
	<-ready

	signal, err := NewPublisherSignal(bus.Publisher, bus.Topic)
	require.NoError(t, err)
	require.NoError(t, signal.Raise(ctx, "editor"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
	p := <-got
	require.Equal(t, opendocs.UpdateSignalName, p.Signal)
	require.Equal(t, "editor", p.User)
}

func TestWatch(t *testing.T) {
	bus, err := BuildBus(Settings{Topic: "test.signals"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users := make(chan string, 4)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- Watch(ctx, bus.Subscriber, bus.Topic, func(p SignalPayload) { users <- p.User })
	}()

	signal, err := NewPublisherSignal(bus.Publisher, bus.Topic)
	require.NoError(t, err)

	// GoChannel drops messages published before the subscription exists
	require.Eventually(t, func() bool {
		_ = signal.Raise(ctx, "u1")
		select {
		case u := <-users:
			return u == "u1"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-watchDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestPublisherSignal_RedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	bus, err := BuildRedisBus(client, Settings{Enabled: true, Topic: "opendocs.test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	signal, err := NewPublisherSignal(bus.Publisher, bus.Topic)
	require.NoError(t, err)
	require.NoError(t, signal.Raise(context.Background(), "u7"))

	check := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = check.Close() })
	msgs, err := check.XRange(context.Background(), "opendocs.test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	found := false
	for _, v := range msgs[0].Values {
		if strings.Contains(fmt.Sprint(v), opendocs.UpdateSignalName) {
			found = true
		}
	}
	require.True(t, found, "payload carries the signal name")
}

func TestEnsureGroupAtTail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, EnsureGroupAtTail(ctx, client, "opendocs.update", "ui"))
	require.NoError(t, EnsureGroupAtTail(ctx, client, "opendocs.update", "ui"))
}

func TestNewPublisherSignal_Validation(t *testing.T) {
	_, err := NewPublisherSignal(nil, "x")
	require.Error(t, err)
}

func TestNewParameterLayer(t *testing.T) {
	section, err := NewParameterLayer()
	require.NoError(t, err)
	require.Equal(t, RedisSlug, section.GetSlug())
}
