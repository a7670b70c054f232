package config

import (
	"testing"
	"time"
)

// withEnv 清空会影响结果的变量（viper 把空值视为未设置）后再写入本用例的值。
func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for _, key := range []string{
		"STORE_BACKEND", "STORE_SEED_DEMO", "STORE_SEED_PASSWORD", "DATABASE_DRIVER",
		"SCORING_WEIGHT_POLICY", "UPLOAD_ALLOWED_TYPES", "API_ALLOWED_ORIGINS", "API_PORT",
		"JWT_ACCESS_TOKEN_TTL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
	for key, value := range values {
		t.Setenv(key, value)
	}
	// .env 不存在时 godotenv 直接返回，测试目录下没有该文件。
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 || cfg.Store.Backend != "gorm" || cfg.Database.Driver != "postgres" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute || cfg.Export.MaxRetry != 3 {
		t.Fatalf("unexpected auth/export defaults %+v %+v", cfg.Auth, cfg.Export)
	}
	if len(cfg.Upload.AllowedTypes) != 3 {
		t.Fatalf("unexpected allowed types %v", cfg.Upload.AllowedTypes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		"STORE_BACKEND":         "memory",
		"STORE_SEED_DEMO":       "true",
		"STORE_SEED_PASSWORD":   "demo-pass1",
		"SCORING_WEIGHT_POLICY": "strict",
		"UPLOAD_ALLOWED_TYPES":  "application/pdf, image/png",
		"API_ALLOWED_ORIGINS":   "https://portal.example.org",
		"JWT_ACCESS_TOKEN_TTL":  "5m",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "memory" || !cfg.Store.SeedDemo || cfg.Scoring.WeightPolicy != "strict" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Store, cfg.Scoring)
	}
	if len(cfg.Upload.AllowedTypes) != 2 || cfg.Upload.AllowedTypes[1] != "image/png" {
		t.Fatalf("allowed types not split: %q", cfg.Upload.AllowedTypes)
	}
	if len(cfg.API.AllowedOrigins) != 1 || cfg.Auth.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("unexpected api/auth config %+v %+v", cfg.API, cfg.Auth)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":    {"STORE_BACKEND": "mongo"},
		"unknown policy":     {"SCORING_WEIGHT_POLICY": "loose"},
		"unknown driver":     {"DATABASE_DRIVER": "mysql"},
		"weak seed password": {"STORE_SEED_DEMO": "true", "STORE_SEED_PASSWORD": "short"},
		"bad port":           {"API_PORT": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			withEnv(t, env)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
