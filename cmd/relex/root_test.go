package main

import (
	"testing"

	"github.com/spf13/viper"
)

func TestPipelineConfigOverrides(t *testing.T) {
	viper.Set("db_path", "/tmp/override.db")
	viper.Set("split", 2)
	viper.Set("parallelism", 3)
	t.Cleanup(func() {
		viper.Set("db_path", "")
		viper.Set("split", nil)
		viper.Set("parallelism", 0)
	})

	cfg := pipelineConfig()
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("cfg.DBPath = %q, want /tmp/override.db", cfg.DBPath)
	}
	if cfg.Split != 2 {
		t.Errorf("cfg.Split = %d, want 2", cfg.Split)
	}
	if cfg.Parallelism != 3 {
		t.Errorf("cfg.Parallelism = %d, want 3", cfg.Parallelism)
	}
}

func TestPipelineConfigDefaults(t *testing.T) {
	cfg := pipelineConfig()
	if cfg.Split != 0 {
		t.Errorf("cfg.Split = %d, want 0", cfg.Split)
	}
	if cfg.DBName != "relex" {
		t.Errorf("cfg.DBName = %q, want relex", cfg.DBName)
	}
}
