// harness-demo runs a small, self-contained scenario against the HTTP
// protocol adapter, demonstrating the component/hook/step wiring the
// harness library exposes end to end. It mirrors
// codeready-toolchain-tarsy's cmd/tarsy/main.go bootstrap shape: flag-based
// config directory, .env loading, then wiring real components together.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meshtest/harness/pkg/config"
	"github.com/meshtest/harness/pkg/harness"
	"github.com/meshtest/harness/pkg/protocols/http"
	"github.com/meshtest/harness/pkg/reporter"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := config.LoadDotEnv(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	}

	scenarioCfg, err := config.LoadScenarioConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load scenario config: %v", err)
	}
	if err := scenarioCfg.Validate(); err != nil {
		log.Fatalf("invalid scenario config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(scenarioCfg.LogLevel),
	}))

	ctx := context.Background()
	if err := runDemo(ctx, logger, scenarioCfg); err != nil {
		log.Fatalf("demo scenario failed: %v", err)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runDemo wires a mock-mode HTTP server and a matching client into a
// Scenario with a single test case: a mocked health-check response
// recorded and reported through the console reporter.
func runDemo(ctx context.Context, logger *slog.Logger, cfg config.ScenarioConfig) error {
	proto := http.New(logger)
	addr := harness.Address{Host: "127.0.0.1", Port: 18080}

	server := harness.NewSyncServer("api", proto.NewServer(nil), addr, logger)
	client := harness.NewSyncClient("api-client", proto.NewClient(), addr, logger)

	scenario := harness.NewScenario("harness-demo", harness.Options{
		FailFast: cfg.FailFast,
		Timeout:  cfg.Timeout,
	}).Logger(logger).Reporter(reporter.NewConsole(logger))

	scenario.AddComponent("api", server, server.BaseComponent)
	scenario.AddComponent("api-client", client, client.BaseComponent)

	tc := harness.NewTestCase("health check").
		OnRequest("api", "GET /health", harness.MockResponseJSON(`{"status":"ok"}`)).
		Match(http.MessageTypeMatcher("GET", "/health")).
		Do("api-client", client.Request(&harness.Message{Type: "GET /health"})).
		Build()
	scenario.AddTestCase(tc)

	if err := scenario.Run(ctx); err != nil {
		return err
	}

	resp := client.LastResponse("GET /health")
	logger.Info("demo scenario finished", "response", string(resp.Payload))
	return nil
}
