package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
classpath = ["build/classes", "/abs/classes"]
jmod = "/opt/jdk/jmods/java.base.jmod"

[log]
verbosity = 2
file = "setip.log"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "build/classes"), "/abs/classes"}, cfg.ClassPath)
	assert.Equal(t, "/opt/jdk/jmods/java.base.jmod", cfg.JmodPath)
	assert.Equal(t, 2, cfg.Log.Verbosity)
	assert.Equal(t, "setip.log", cfg.Log.File)
	assert.Equal(t, dir, cfg.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("JAVA_BASE_JMOD", "/env/java.base.jmod")
	t.Setenv("SETIP_CLASSPATH", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.ClassPath)
	assert.Equal(t, "/env/java.base.jmod", cfg.JmodPath)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETIP_CLASSPATH", "")
	require.NoError(t, os.Unsetenv("SETIP_CLASSPATH"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SETIP_CLASSPATH=/from/env\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/from/env"}, cfg.ClassPath)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("classpath = ["), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestFindJmodPath(t *testing.T) {
	t.Run("explicit env", func(t *testing.T) {
		t.Setenv("JAVA_BASE_JMOD", "/explicit.jmod")
		assert.Equal(t, "/explicit.jmod", FindJmodPath())
	})

	t.Run("java home", func(t *testing.T) {
		home := t.TempDir()
		jmod := filepath.Join(home, "jmods", "java.base.jmod")
		require.NoError(t, os.MkdirAll(filepath.Dir(jmod), 0o755))
		require.NoError(t, os.WriteFile(jmod, []byte("JM"), 0o644))
		t.Setenv("JAVA_BASE_JMOD", "")
		t.Setenv("JAVA_HOME", home)
		assert.Equal(t, jmod, FindJmodPath())
	})
}

func TestSplitClassPath(t *testing.T) {
	sep := string(filepath.ListSeparator)
	assert.Equal(t, []string{"a", "b"}, SplitClassPath("a"+sep+" "+sep+"b"))
	assert.Empty(t, SplitClassPath(""))
}
