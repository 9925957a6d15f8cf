package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath     string `yaml:"db_path"`
	RawMailDir string `yaml:"mail_raw_dir"`
	OutputDir  string `yaml:"output_dir"`

	ProductsFile  string `yaml:"products_file"`
	SuppliersFile string `yaml:"suppliers_file"`
	RulesDir      string `yaml:"rules_dir"`

	DefaultExchangeRate float64 `yaml:"default_exchange_rate"`
	MailSupplier        string  `yaml:"mail_supplier"`
	HTTPAddr            string  `yaml:"http_addr"`

	GmailClientID     string `yaml:"gmail_client_id"`
	GmailClientSecret string `yaml:"gmail_client_secret"`
	GmailRedirectURI  string `yaml:"gmail_redirect_uri"`
	GmailRefreshToken string `yaml:"gmail_refresh_token"`

	IMAPHost     string `yaml:"imap_host"`
	IMAPPort     int    `yaml:"imap_port"`
	IMAPSecure   bool   `yaml:"imap_secure"`
	IMAPUser     string `yaml:"imap_user"`
	IMAPPassword string `yaml:"imap_password"`
	IMAPMarkSeen bool   `yaml:"imap_mark_seen"`

	MailListenerProvider     string `yaml:"mail_listener_provider"`
	MailListenerLabel        string `yaml:"mail_listener_label"`
	MailListenerIntervalSec  int    `yaml:"mail_listener_interval_sec"`
	MailListenerFetchMax     int    `yaml:"mail_listener_fetch_max"`
	MailListenerProcessBatch int    `yaml:"mail_listener_process_batch"`
	MailListenerAutoExport   bool   `yaml:"mail_listener_auto_export"`
}

// Load resolves settings from defaults, then the optional YAML file named by
// CONFIG_FILE, then the environment (including .env).
func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults(cwd)
	if err := cfg.mergeFile(getEnv("CONFIG_FILE", filepath.Join(cwd, "florapricing.yaml"))); err != nil {
		return Config{}, err
	}

	cfg = Config{
		DBPath:     getEnv("DB_PATH", cfg.DBPath),
		RawMailDir: getEnv("MAIL_RAW_DIR", cfg.RawMailDir),
		OutputDir:  getEnv("OUTPUT_DIR", cfg.OutputDir),

		ProductsFile:  getEnv("PRODUCTS_FILE", cfg.ProductsFile),
		SuppliersFile: getEnv("SUPPLIERS_FILE", cfg.SuppliersFile),
		RulesDir:      getEnv("RULES_DIR", cfg.RulesDir),

		DefaultExchangeRate: getEnvFloat("DEFAULT_EXCHANGE_RATE", cfg.DefaultExchangeRate),
		MailSupplier:        getEnv("MAIL_SUPPLIER", cfg.MailSupplier),
		HTTPAddr:            getEnv("HTTP_ADDR", cfg.HTTPAddr),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", cfg.GmailClientID),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", cfg.GmailRedirectURI),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken),

		IMAPHost:     getEnv("IMAP_HOST", cfg.IMAPHost),
		IMAPPort:     getEnvInt("IMAP_PORT", cfg.IMAPPort),
		IMAPSecure:   getEnvBool("IMAP_SECURE", cfg.IMAPSecure),
		IMAPUser:     getEnv("IMAP_USER", cfg.IMAPUser),
		IMAPPassword: getEnv("IMAP_PASSWORD", cfg.IMAPPassword),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", cfg.IMAPMarkSeen),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", cfg.MailListenerProvider),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", cfg.MailListenerLabel),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", cfg.MailListenerIntervalSec),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", cfg.MailListenerFetchMax),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", cfg.MailListenerProcessBatch),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", cfg.MailListenerAutoExport),
	}

	return cfg, nil
}

func Defaults(root string) Config {
	return Config{
		DBPath:     filepath.Join(root, "data", "app.db"),
		RawMailDir: filepath.Join(root, "data", "raw"),
		OutputDir:  filepath.Join(root, "out"),

		ProductsFile:  filepath.Join(root, "config", "produtos.json"),
		SuppliersFile: filepath.Join(root, "config", "fornecedores.json"),
		RulesDir:      filepath.Join(root, "config", "suppliers"),

		DefaultExchangeRate: 5.0,
		MailSupplier:        "flores_prisma",
		HTTPAddr:            ":8080",

		GmailRedirectURI: "https://developers.google.com/oauthplayground",

		IMAPPort:   993,
		IMAPSecure: true,

		MailListenerProvider:     "gmail",
		MailListenerLabel:        "INBOX",
		MailListenerIntervalSec:  30,
		MailListenerFetchMax:     20,
		MailListenerProcessBatch: 20,
		MailListenerAutoExport:   true,
	}
}

// mergeFile overlays keys present in a YAML file. A missing file is not an
// error; a malformed one is.
func (c *Config) mergeFile(path string) error {
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(blob, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.ReplaceAll(getEnv(key, ""), ",", ".")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
