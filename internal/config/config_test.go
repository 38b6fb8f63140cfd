package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("RECIPE_CACHE_TTL_SECONDS", "soon")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("EXPIRING_SOON_DAYS", "0")
	t.Setenv("AUTO_MIGRATE", "")

	cfg := Load()
	if cfg.RecipeCacheTTLSeconds != 600 {
		t.Fatalf("expected recipe ttl fallback 600, got %d", cfg.RecipeCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token ttl fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.ExpiringSoonDays != 7 {
		t.Fatalf("expected expiring window fallback 7, got %d", cfg.ExpiringSoonDays)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto migrate off by default")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("EXPIRING_SOON_DAYS", "3")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.ExpiringSoonDays != 3 || !cfg.AutoMigrate || cfg.RedisDB != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
