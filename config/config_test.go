package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port == "" {
		t.Error("server port default missing")
	}
	if cfg.Database.DBName == "" {
		t.Error("database name default missing")
	}
	if cfg.Redis.Addr == "" {
		t.Error("redis addr default missing")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("READ_TIMEOUT_SEC", "7")
	t.Setenv("READ_TIMEOUT_SEC_BOGUS", "x")
	t.Setenv("DATABASE_URL", "postgres://db.example:5432/sessions?sslmode=require")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 7 {
		t.Errorf("read timeout = %d, want 7", cfg.Server.ReadTimeout)
	}
	if got := cfg.Database.DSN(); got != "postgres://db.example:5432/sessions?sslmode=require" {
		t.Errorf("dsn = %s", got)
	}
}

func TestDSNFromComponents(t *testing.T) {
	c := DatabaseConfig{
		Host: "localhost", Port: "5432", User: "app", Password: "pw",
		DBName: "heritagehub", SSLMode: "disable",
	}
	want := "postgres://app:pw@localhost:5432/heritagehub?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("dsn = %s, want %s", got, want)
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 42); got != 42 {
		t.Errorf("got %d, want fallback 42", got)
	}
}
