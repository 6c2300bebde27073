// Package config reads the console and reference API settings from the
// environment. Callers load .env themselves (best-effort) before calling.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultAPIBaseURL     = "https://localhost:7227/"
	DefaultConsoleURL     = "http://localhost:3000/"
	DefaultCookieMaxAge   = 60 * 60 * 8
	productionEnvironment = "production"
)

// Console configures both the console server and the console client.
type Console struct {
	APIBaseURL   string `envconfig:"API_BASE_URL" default:"https://localhost:7227/"`
	ConsoleURL   string `envconfig:"CONSOLE_URL" default:"http://localhost:3000/"`
	Addr         string `envconfig:"CONSOLE_ADDR" default:":3000"`
	Environment  string `envconfig:"APP_ENV" default:"development"`
	CookieMaxAge int    `envconfig:"SESSION_COOKIE_MAX_AGE" default:"28800"`
	StoragePath  string `envconfig:"CONSOLE_STORAGE_PATH"`
}

// API configures the reference backend.
type API struct {
	Addr          string        `envconfig:"API_ADDR" default:":7227"`
	Issuer        string        `envconfig:"JWT_ISSUER" default:"http://localhost:7227"`
	TokenTTL      time.Duration `envconfig:"JWT_TTL" default:"15m"`
	AdminUsername string        `envconfig:"BOOTSTRAP_ADMIN_USERNAME" default:"admin"`
	AdminPassword string        `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`
	AdminFullname string        `envconfig:"BOOTSTRAP_ADMIN_FULLNAME" default:"Administrador"`
	AdminRole     string        `envconfig:"BOOTSTRAP_ADMIN_ROLE" default:"Administrador"`
	// TLS is served when both files are set; the console defaults to an https base URL.
	TLSCert string `envconfig:"API_TLS_CERT"`
	TLSKey  string `envconfig:"API_TLS_KEY"`
}

// LoadConsole processes the environment and normalizes the URLs.
func LoadConsole() (Console, error) {
	var c Console
	if err := envconfig.Process("", &c); err != nil {
		return Console{}, fmt.Errorf("process console env: %w", err)
	}
	c.APIBaseURL = EnsureTrailingSlash(c.APIBaseURL)
	c.ConsoleURL = EnsureTrailingSlash(c.ConsoleURL)
	if c.CookieMaxAge <= 0 {
		c.CookieMaxAge = DefaultCookieMaxAge
	}
	if c.StoragePath == "" {
		c.StoragePath = DefaultStoragePath()
	}
	return c, nil
}

// LoadAPI processes the environment for the reference backend.
func LoadAPI() (API, error) {
	var a API
	if err := envconfig.Process("", &a); err != nil {
		return API{}, fmt.Errorf("process api env: %w", err)
	}
	a.Issuer = strings.TrimRight(a.Issuer, "/")
	if a.TokenTTL <= 0 {
		a.TokenTTL = 15 * time.Minute
	}
	return a, nil
}

// Production reports whether cookies must carry the Secure flag.
func (c Console) Production() bool {
	return strings.EqualFold(c.Environment, productionEnvironment)
}

// APIBase parses APIBaseURL.
func (c Console) APIBase() (*url.URL, error) {
	return parseBase(c.APIBaseURL)
}

// ConsoleBase parses ConsoleURL.
func (c Console) ConsoleBase() (*url.URL, error) {
	return parseBase(c.ConsoleURL)
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(EnsureTrailingSlash(raw))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	return u, nil
}

// EnsureTrailingSlash appends "/" unless the value already ends with one.
func EnsureTrailingSlash(value string) string {
	if strings.HasSuffix(value, "/") {
		return value
	}
	return value + "/"
}

// DefaultStoragePath is <user config dir>/processo-console/storage.json, or a
// file in the working directory when no config dir is known.
func DefaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "processo-console-storage.json"
	}
	return filepath.Join(dir, "processo-console", "storage.json")
}
