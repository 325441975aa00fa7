package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STORE_BACKEND_BASE_URL": "https://commerce.example.com",
	}
}

func loadWith(t *testing.T, env map[string]string, opts ...Option) Config {
	t.Helper()
	all := append([]Option{
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	}, opts...)
	cfg, err := Load(context.Background(), all...)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := loadWith(t, baseEnv())

	if cfg.Server.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second || cfg.Server.WriteTimeout != 30*time.Second {
		t.Fatalf("server timeouts = %+v", cfg.Server)
	}
	if cfg.GuestStore.Kind != "file" || cfg.GuestStore.Dir != "./data/guest-carts" {
		t.Fatalf("guest store = %+v", cfg.GuestStore)
	}
	if cfg.GuestStore.TTL != 30*24*time.Hour {
		t.Fatalf("TTL = %v", cfg.GuestStore.TTL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Fatalf("backend timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.RateLimits.GuestPerMinute != 120 || cfg.RateLimits.SyncPerMinute != 10 {
		t.Fatalf("rate limits = %+v", cfg.RateLimits)
	}
	if cfg.Environment != "local" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	env := baseEnv()
	env["STORE_SERVER_PORT"] = "9090"
	env["STORE_BACKEND_TIMEOUT"] = "5s"
	env["STORE_GUEST_CART_TTL"] = "72h"
	env["STORE_RATELIMIT_GUEST_PER_MIN"] = "60"
	env["STORE_ENVIRONMENT"] = "Production"

	cfg := loadWith(t, env)

	if cfg.Server.Port != "9090" {
		t.Fatalf("Port = %q", cfg.Server.Port)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("backend timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.GuestStore.TTL != 72*time.Hour {
		t.Fatalf("TTL = %v", cfg.GuestStore.TTL)
	}
	if cfg.RateLimits.GuestPerMinute != 60 {
		t.Fatalf("guest rate = %d", cfg.RateLimits.GuestPerMinute)
	}
	if cfg.Environment != "production" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
}

func TestLoadRequiresBackendBaseURL(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(map[string]string{}))

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	found := false
	for _, field := range validation.Fields() {
		if field == "Backend.BaseURL" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fields = %v, want Backend.BaseURL listed", validation.Fields())
	}
}

func TestLoadRedisKindRequiresAddr(t *testing.T) {
	env := baseEnv()
	env["STORE_GUEST_STORE_KIND"] = "redis"

	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	env["STORE_REDIS_ADDR"] = "localhost:6379"
	env["STORE_REDIS_DB"] = "2"
	cfg := loadWith(t, env)
	if cfg.GuestStore.Kind != "redis" || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("redis config = %+v", cfg.Redis)
	}
}

func TestLoadRejectsUnknownGuestStoreKind(t *testing.T) {
	env := baseEnv()
	env["STORE_GUEST_STORE_KIND"] = "memcache"

	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["STORE_BACKEND_SERVICE_TOKEN"] = "secret://storefront/backend-token"
	env["STORE_REDIS_PASSWORD"] = "sm://storefront/redis-password"

	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved-" + ref, nil
	})

	cfg := loadWith(t, env, WithSecretResolver(resolver))

	if cfg.Backend.ServiceToken != "resolved-secret://storefront/backend-token" {
		t.Fatalf("service token = %q", cfg.Backend.ServiceToken)
	}
	// sm:// references are normalised to secret:// before resolution.
	if cfg.Redis.Password != "resolved-secret://storefront/redis-password" {
		t.Fatalf("redis password = %q", cfg.Redis.Password)
	}
	if len(refs) != 2 {
		t.Fatalf("resolver calls = %v", refs)
	}
}

func TestLoadPlainValuesBypassResolver(t *testing.T) {
	env := baseEnv()
	env["STORE_BACKEND_SERVICE_TOKEN"] = "plain-token"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		t.Fatalf("resolver called for plain value %q", ref)
		return "", nil
	})

	cfg := loadWith(t, env, WithSecretResolver(resolver))
	if cfg.Backend.ServiceToken != "plain-token" {
		t.Fatalf("service token = %q", cfg.Backend.ServiceToken)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["STORE_BACKEND_SERVICE_TOKEN"] = "secret://storefront/backend-token"

	resolver := SecretResolverFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env), WithSecretResolver(resolver))

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("err = %v, want SecretError", err)
	}
	if secretErr.Ref != "secret://storefront/backend-token" {
		t.Fatalf("ref = %q", secretErr.Ref)
	}
}

func TestLoadReportsMissingRequiredSecrets(t *testing.T) {
	env := baseEnv()

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithRequiredSecrets("Backend.ServiceToken"),
	)

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingSecretsError", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Backend.ServiceToken" {
		t.Fatalf("names = %v", names)
	}
	// The redacted form never echoes the field name.
	for _, redacted := range missing.RedactedNames() {
		if redacted == "Backend.ServiceToken" {
			t.Fatal("redacted name leaks the raw identifier")
		}
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# local overrides\nexport STORE_BACKEND_BASE_URL=\"https://dotenv.example.com\"\nSTORE_SERVER_PORT=7070\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envFile), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://dotenv.example.com" {
		t.Fatalf("base URL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
}

func TestEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STORE_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"STORE_BACKEND_BASE_URL": "https://commerce.example.com",
			"STORE_SERVER_PORT":      "9090",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q, want env map to win", cfg.Server.Port)
	}
}

func TestPubSubProjectDefaultsToFirebaseProject(t *testing.T) {
	env := baseEnv()
	env["STORE_FIREBASE_PROJECT_ID"] = "evergrove-prod"
	env["STORE_PUBSUB_SYNC_REPORT_TOPIC"] = "cart-sync-drops"

	cfg := loadWith(t, env)
	if cfg.PubSub.ProjectID != "evergrove-prod" {
		t.Fatalf("pubsub project = %q", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.Topic != "cart-sync-drops" {
		t.Fatalf("topic = %q", cfg.PubSub.Topic)
	}
}
