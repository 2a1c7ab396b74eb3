package ws

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtest/harness/pkg/harness"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestWS_ServerBroadcastsEventToConnectedClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-bound integration test in short mode")
	}

	proto := New(nil)
	addr := harness.Address{Host: "127.0.0.1", Port: freePort(t), Path: "/ws"}

	serverAdapter := proto.NewServer(nil)
	server := harness.NewAsyncServer("ws-server", serverAdapter, addr, nil)

	clientAdapter := proto.NewClient()
	client := harness.NewAsyncClient("ws-client", clientAdapter, addr, nil)

	// Start the server first so the client's dial below has something to
	// connect to, then exercise the Executor directly against a scenario
	// used only as a ComponentRegistry here.
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	scenario := harness.NewScenario("ws broadcast", harness.Options{})
	scenario.AddComponent("ws-server", server, server.BaseComponent)
	scenario.AddComponent("ws-client", client, client.BaseComponent)

	received := make(chan *harness.Message, 1)
	capture := harness.Handler{
		Type: harness.HandlerAssert,
		Fn: func(_ *harness.HandlerContext, msg *harness.Message) (*harness.Message, harness.HandlerOutcome, error) {
			received <- msg
			return msg, harness.OutcomeNone, nil
		},
	}

	tc := harness.NewTestCase("broadcast greeting").
		OnEvent("ws-client", "greeting", capture).
		Do("ws-server", server.SendEvent("", &harness.Message{Type: "greeting", Payload: []byte("hello")})).
		Build()

	exec := &harness.Executor{Registry: scenario}
	_, err := exec.Run(context.Background(), tc)
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "greeting", msg.Type)
		assert.Equal(t, []byte("hello"), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the broadcast event")
	}
}
