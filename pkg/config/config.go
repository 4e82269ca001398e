// Package config handles setip.toml configuration and JDK discovery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "setip.toml"

// Config is the tool configuration.
type Config struct {
	// ClassPath lists directories holding user classes, used to answer
	// common superclass queries.
	ClassPath []string `toml:"classpath"`
	// JmodPath is the java.base.jmod holding the JDK classes.
	JmodPath string `toml:"jmod"`
	Log      Log    `toml:"log"`

	// Dir is the directory containing the loaded file (set at load time).
	Dir string `toml:"-"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load reads .env and setip.toml from dir. A missing file yields the
// defaults. The jmod path falls back to FindJmodPath.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := &Config{Dir: dir}
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	for i, p := range cfg.ClassPath {
		if !filepath.IsAbs(p) {
			cfg.ClassPath[i] = filepath.Join(dir, p)
		}
	}
	if cp := os.Getenv("SETIP_CLASSPATH"); cp != "" && len(cfg.ClassPath) == 0 {
		cfg.ClassPath = filepath.SplitList(cp)
	}
	if cfg.JmodPath == "" {
		cfg.JmodPath = FindJmodPath()
	}
	return cfg, nil
}

// SplitClassPath splits a -classpath flag value.
func SplitClassPath(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FindJmodPath locates java.base.jmod, or returns "".
func FindJmodPath() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
