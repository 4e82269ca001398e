package hierarchy

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/daimatz/setip/pkg/classfile"
)

func classBytes(t *testing.T, name, super string, access uint16) []byte {
	t.Helper()
	cf := classfile.New(name, super)
	cf.AccessFlags |= access
	data, err := cf.Bytes()
	if err != nil {
		t.Fatalf("encoding %s: %v", name, err)
	}
	return data
}

// writeJmod writes a minimal jmod: the JM header followed by a zip whose
// classes/ entries hold the given classes.
func writeJmod(t *testing.T, classes map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{'J', 'M', 1, 0})
	zw := zip.NewWriter(&buf)
	for name, data := range classes {
		w, err := zw.Create("classes/" + name + ".class")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "java.base.jmod")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeClassDir(t *testing.T, classes map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range classes {
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testJmod(t *testing.T) string {
	return writeJmod(t, map[string][]byte{
		"java/lang/Object":    classBytes(t, "java/lang/Object", "", 0),
		"java/lang/Number":    classBytes(t, "java/lang/Number", "java/lang/Object", 0),
		"java/lang/Integer":   classBytes(t, "java/lang/Integer", "java/lang/Number", 0),
		"java/lang/Long":      classBytes(t, "java/lang/Long", "java/lang/Number", 0),
		"java/lang/Runnable":  classBytes(t, "java/lang/Runnable", "java/lang/Object", classfile.AccInterface|classfile.AccAbstract),
		"java/lang/Throwable": classBytes(t, "java/lang/Throwable", "java/lang/Object", 0),
	})
}

func TestJmodClassLoader(t *testing.T) {
	cl := NewJmodClassLoader(testJmod(t))

	t.Run("load Integer class", func(t *testing.T) {
		cf, err := cl.LoadClass("java/lang/Integer")
		if err != nil {
			t.Fatalf("failed to load java/lang/Integer: %v", err)
		}
		name, err := cf.ClassName()
		if err != nil {
			t.Fatalf("failed to get class name: %v", err)
		}
		if name != "java/lang/Integer" {
			t.Errorf("class name: got %q, want %q", name, "java/lang/Integer")
		}
	})

	t.Run("cached", func(t *testing.T) {
		a, err := cl.LoadClass("java/lang/Object")
		if err != nil {
			t.Fatalf("failed to load java/lang/Object: %v", err)
		}
		b, err := cl.LoadClass("java/lang/Object")
		if err != nil {
			t.Fatalf("failed to load java/lang/Object: %v", err)
		}
		if a != b {
			t.Error("expected the cached class on the second load")
		}
	})

	t.Run("missing class", func(t *testing.T) {
		if _, err := cl.LoadClass("java/lang/Missing"); err == nil {
			t.Error("expected error for a missing class")
		}
	})
}

func TestJmodClassLoaderRejectsNonJmod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jmod")
	if err := os.WriteFile(path, []byte("PK\x03\x04"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJmodClassLoader(path).LoadClass("java/lang/Object"); err == nil {
		t.Error("expected error for a file without the JM header")
	}
}

func TestUserClassLoader(t *testing.T) {
	bootstrap := NewJmodClassLoader(testJmod(t))
	dir := writeClassDir(t, map[string][]byte{
		"com/example/Hello": classBytes(t, "com/example/Hello", "java/lang/Object", 0),
	})
	userCL := NewUserClassLoader([]string{dir}, bootstrap)

	t.Run("load Hello class", func(t *testing.T) {
		cf, err := userCL.LoadClass("com/example/Hello")
		if err != nil {
			t.Fatalf("failed to load Hello: %v", err)
		}
		name, err := cf.ClassName()
		if err != nil {
			t.Fatalf("failed to get class name: %v", err)
		}
		if name != "com/example/Hello" {
			t.Errorf("class name: got %q, want %q", name, "com/example/Hello")
		}
	})

	t.Run("delegates to parent for stdlib classes", func(t *testing.T) {
		cf, err := userCL.LoadClass("java/lang/Integer")
		if err != nil {
			t.Fatalf("failed to load java/lang/Integer via user class loader: %v", err)
		}
		if got := cf.SuperClassName(); got != "java/lang/Number" {
			t.Errorf("super class: got %q, want %q", got, "java/lang/Number")
		}
	})

	t.Run("missing class", func(t *testing.T) {
		if _, err := userCL.LoadClass("com/example/Missing"); err == nil {
			t.Error("expected error for a missing class")
		}
	})
}
