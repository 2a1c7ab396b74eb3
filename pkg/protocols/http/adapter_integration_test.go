package http

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtest/harness/pkg/harness"
)

// freePort grabs an OS-assigned loopback port, then releases it immediately
// so the server under test can bind the same address a moment later.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestHTTP_MockServerAndClientRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-bound integration test in short mode")
	}

	proto := New(nil)
	addr := harness.Address{Host: "127.0.0.1", Port: freePort(t)}

	serverAdapter := proto.NewServer(nil)
	server := harness.NewSyncServer("api", serverAdapter, addr, nil)

	clientAdapter := proto.NewClient()
	client := harness.NewSyncClient("api-client", clientAdapter, addr, nil)

	scenario := harness.NewScenario("http mock round trip", harness.Options{})
	scenario.AddComponent("api", server, server.BaseComponent)
	scenario.AddComponent("api-client", client, client.BaseComponent)

	tc := harness.NewTestCase("health check").
		OnRequest("api", "GET /health", harness.MockResponseJSON(`{"status":"ok"}`)).
		Do("api-client", client.Request(&harness.Message{Type: "GET /health"})).
		Build()
	scenario.AddTestCase(tc)

	require.NoError(t, scenario.Run(context.Background()))

	resp := client.LastResponse("GET /health")
	require.NotNil(t, resp)
	assert.Equal(t, "200", resp.Type)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Payload))
}
