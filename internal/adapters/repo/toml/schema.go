package toml

import "fmt"

const (
	currentSchemaVersion          = 1
	currentCooldownsSchemaVersion = 1
)

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
	for i := range s.Accounts {
		if s.Accounts[i].Status == "" {
			s.Accounts[i].Status = "offline"
		}
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID         string     `toml:"id"`
	Index      int        `toml:"index"`
	Name       string     `toml:"name"`
	Status     string     `toml:"status"`
	Limited    bool       `toml:"limited,omitempty"`
	ProxyIndex int        `toml:"proxy_index"`
	Auth       authSchema `toml:"auth"`
}

type authSchema struct {
	Method    string `toml:"method"`
	SecretRef string `toml:"secret_ref"`
}

type cooldownsFileSchema struct {
	Version   int              `toml:"version"`
	Cooldowns []cooldownSchema `toml:"cooldowns"`
}

func (s *cooldownsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentCooldownsSchemaVersion
	}
}

func (s cooldownsFileSchema) validateVersion() error {
	if s.Version > currentCooldownsSchemaVersion {
		return fmt.Errorf("unsupported cooldowns schema version %d (current %d)", s.Version, currentCooldownsSchemaVersion)
	}

	return nil
}

type cooldownSchema struct {
	UserID string `toml:"user_id"`
	Until  string `toml:"until"`
}
