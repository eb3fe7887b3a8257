package detect

import (
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

// chelperConfig is the Z.AI coding-helper's ~/.chelper/config.yaml.
type chelperConfig struct {
	Plan   string `yaml:"plan"`
	APIKey string `yaml:"api_key"`
}

func (d *detector) zai() {
	path := filepath.Join(d.rt.Home, ".chelper", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var cfg chelperConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		d.log.Debug().Err(err).Str("path", path).Msg("unreadable coding-helper config")
		return
	}
	cfg.Plan = strings.TrimSpace(cfg.Plan)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Plan == "" && cfg.APIKey == "" {
		return
	}

	acct := core.AccountConfig{
		ID:        "zai",
		Provider:  "zai",
		APIKeyEnv: "ZAI_API_KEY",
		Token:     cfg.APIKey,
		ExtraData: map[string]string{"config_file": path},
	}
	if cfg.Plan != "" {
		acct.ExtraData["plan_type"] = cfg.Plan
	}
	d.add(Tool{Provider: "zai", Name: "Z.AI Coding Helper", ConfigPath: path}, &acct)
}
