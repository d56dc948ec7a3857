package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets in the config file.
const (
	EnvChatBotToken     = "KASBON_CHATBOT_TOKEN"
	EnvOperatorToken    = "KASBON_OPERATOR_TOKEN"
	EnvDebtorsToken     = "KASBON_DEBTORS_TOKEN"
	EnvDebtorsDSN       = "KASBON_DEBTORS_DSN"
	EnvDiagnosticsToken = "KASBON_DIAGNOSTICS_TOKEN"
)

// LoadEnv loads a dotenv file into the process environment. A missing file is
// not an error; variables already set win over the file.
func LoadEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv overlays non-empty KASBON_* secrets onto cfg.
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.ChatBot.Token, EnvChatBotToken)
	set(&cfg.Operator.Token, EnvOperatorToken)
	set(&cfg.Debtors.Token, EnvDebtorsToken)
	set(&cfg.Debtors.DSN, EnvDebtorsDSN)
	set(&cfg.Diagnostics.Token, EnvDiagnosticsToken)
}
