package hierarchy

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/daimatz/setip/pkg/classfile"
)

// classCacheSize bounds the number of parsed classes each loader keeps.
const classCacheSize = 4096

// ClassLoader loads .class files by internal class name.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// JmodClassLoader loads classes from a JDK jmod file.
type JmodClassLoader struct {
	JmodPath  string
	cache     *lru.Cache[string, *classfile.ClassFile]
	entries   map[string]*zip.File
	zipReader *zip.Reader
}

// NewJmodClassLoader creates a new JmodClassLoader.
func NewJmodClassLoader(jmodPath string) *JmodClassLoader {
	cache, _ := lru.New[string, *classfile.ClassFile](classCacheSize)
	return &JmodClassLoader{
		JmodPath: jmodPath,
		cache:    cache,
	}
}

func (cl *JmodClassLoader) ensureZipReader() error {
	if cl.zipReader != nil {
		return nil
	}

	data, err := os.ReadFile(cl.JmodPath)
	if err != nil {
		return fmt.Errorf("jmod: reading %s: %w", cl.JmodPath, err)
	}
	if len(data) < 4 || !bytes.HasPrefix(data, []byte("JM")) {
		return fmt.Errorf("jmod: %s is not a jmod file", cl.JmodPath)
	}

	zipData := data[4:] // Skip "JM\x01\x00" header
	cl.zipReader, err = zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("jmod: opening zip: %w", err)
	}
	cl.entries = make(map[string]*zip.File, len(cl.zipReader.File))
	for _, f := range cl.zipReader.File {
		if name, ok := strings.CutPrefix(f.Name, "classes/"); ok {
			cl.entries[strings.TrimSuffix(name, ".class")] = f
		}
	}
	return nil
}

func (cl *JmodClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.cache.Get(name); ok {
		return cf, nil
	}

	if err := cl.ensureZipReader(); err != nil {
		return nil, err
	}

	file, ok := cl.entries[name]
	if !ok {
		return nil, fmt.Errorf("jmod: class %s not found in %s", name, cl.JmodPath)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("jmod: opening %s: %w", file.Name, err)
	}
	defer rc.Close()

	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("jmod: parsing %s: %w", name, err)
	}
	cl.cache.Add(name, cf)
	return cf, nil
}

// UserClassLoader loads user classes from class directories, delegating to
// the parent first.
type UserClassLoader struct {
	ClassPath []string
	Parent    ClassLoader
	cache     *lru.Cache[string, *classfile.ClassFile]
}

// NewUserClassLoader creates a new UserClassLoader. parent may be nil.
func NewUserClassLoader(classPath []string, parent ClassLoader) *UserClassLoader {
	cache, _ := lru.New[string, *classfile.ClassFile](classCacheSize)
	return &UserClassLoader{
		ClassPath: classPath,
		Parent:    parent,
		cache:     cache,
	}
}

func (cl *UserClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.cache.Get(name); ok {
		return cf, nil
	}
	if cl.Parent != nil {
		if cf, err := cl.Parent.LoadClass(name); err == nil {
			return cf, nil
		}
	}
	for _, dir := range cl.ClassPath {
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		cf, err := parseAndClose(f)
		if err != nil {
			return nil, fmt.Errorf("user: parsing %s: %w", path, err)
		}
		cl.cache.Add(name, cf)
		return cf, nil
	}
	return nil, fmt.Errorf("user: class %s not found", name)
}

func parseAndClose(rc io.ReadCloser) (*classfile.ClassFile, error) {
	defer rc.Close()
	return classfile.Parse(rc)
}
