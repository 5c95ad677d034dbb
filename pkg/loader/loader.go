// Package loader reads FHIR packages from a directory, a node_modules tree,
// the FHIR package cache, or a local .tgz file.
package loader

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/gofhir/cdrloader/pkg/resource"
)

// ErrPackageNotFound is returned when a package reference cannot be resolved.
var ErrPackageNotFound = errors.New("package not found")

// DefaultPackagePath returns the default FHIR package cache path.
func DefaultPackagePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fhir", "packages")
}

// Package is a loaded FHIR package reduced to its metadata resources.
type Package struct {
	Name        string
	Version     string
	FHIRVersion string
	Path        string

	// Resources holds the metadata resources in file order.
	Resources []resource.Resource

	// Ignored counts JSON resources of other types (examples, ImplementationGuide, ...).
	Ignored int

	// Skipped lists files that could not be read or parsed.
	Skipped []SkippedFile
}

// SkippedFile records a file the loader could not use.
type SkippedFile struct {
	Name   string
	Reason string
}

// Manifest is the package.json of a FHIR NPM package.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	FHIRVersion  string            `json:"fhirVersion,omitempty"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (m Manifest) fhirVersion() string {
	if m.FHIRVersion != "" {
		return m.FHIRVersion
	}
	if len(m.FHIRVersions) > 0 {
		return m.FHIRVersions[0]
	}
	return ""
}

// Loader resolves package references.
type Loader struct {
	cacheDir string
	workDir  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithCacheDir sets the FHIR package cache directory.
func WithCacheDir(dir string) Option {
	return func(l *Loader) {
		l.cacheDir = dir
	}
}

// WithWorkDir sets the directory node_modules is looked up in.
func WithWorkDir(dir string) Option {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// New creates a Loader using the default package cache and the current directory.
func New(opts ...Option) *Loader {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	l := &Loader{
		cacheDir: DefaultPackagePath(),
		workDir:  wd,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref and loads the package it points to.
//
// ref may be a .tgz file, a package directory, a module name under
// node_modules, or a "name#version" entry of the package cache.
func (l *Loader) Load(ref string) (*Package, error) {
	if isTgz(ref) {
		if _, err := os.Stat(ref); err == nil {
			return l.LoadTgz(ref)
		}
	}

	dir, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return l.LoadDir(dir)
}

// Resolve returns the directory holding the resources of ref.
func (l *Loader) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty package reference: %w", ErrPackageNotFound)
	}

	candidates := []string{ref}
	if l.workDir != "" {
		candidates = append(candidates, filepath.Join(l.workDir, "node_modules", ref))
	}
	if name, version := ParsePackageSpec(ref); version != "" && l.cacheDir != "" {
		candidates = append(candidates, filepath.Join(l.cacheDir, name+"#"+version))
	}

	for _, dir := range candidates {
		if !isDir(dir) {
			continue
		}
		// Packages extracted from a tarball keep their files under package/.
		if sub := filepath.Join(dir, "package"); isDir(sub) {
			return sub, nil
		}
		return dir, nil
	}
	return "", fmt.Errorf("%s: %w", ref, ErrPackageNotFound)
}

// LoadDir loads the *.json files of dir in name order.
func (l *Loader) LoadDir(dir string) (*Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	pkg := &Package{Path: dir}

	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		if err := pkg.applyManifest(data); err != nil {
			return nil, err
		}
	}
	if pkg.Name == "" {
		pkg.Name = filepath.Base(strings.TrimSuffix(dir, string(os.PathSeparator)+"package"))
	}

	for _, entry := range entries {
		if entry.IsDir() || !isResourceFile(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			pkg.skip(entry.Name(), err)
			continue
		}
		pkg.add(data, entry.Name())
	}
	return pkg, nil
}

// LoadTgz loads a package from a local .tgz file.
func (l *Loader) LoadTgz(path string) (*Package, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tgz file: %w", err)
	}
	defer file.Close()

	return loadFromTgzReader(file, path)
}

func loadFromTgzReader(reader io.Reader, source string) (*Package, error) {
	gzReader, err := gzip.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	pkg := &Package{Path: source}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		// Only top-level files of the package folder hold resources.
		name := strings.TrimPrefix(header.Name, "package/")
		if strings.Contains(name, "/") {
			continue
		}

		if name == "package.json" {
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, fmt.Errorf("failed to read package manifest: %w", err)
			}
			if err := pkg.applyManifest(data); err != nil {
				return nil, err
			}
			continue
		}
		if !isResourceFile(name) {
			continue
		}

		data, err := io.ReadAll(tarReader)
		if err != nil {
			pkg.skip(name, err)
			continue
		}
		pkg.add(data, name)
	}

	if pkg.Name == "" {
		return nil, fmt.Errorf("package.json not found in %s", source)
	}
	return pkg, nil
}

func (p *Package) applyManifest(data []byte) error {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse package manifest: %w", err)
	}
	p.Name = manifest.Name
	p.Version = manifest.Version
	p.FHIRVersion = manifest.fhirVersion()
	return nil
}

func (p *Package) add(data []byte, name string) {
	r, err := resource.Parse(data, name)
	if err != nil {
		p.skip(name, err)
		return
	}
	if !resource.IsMetadata(r.Type) {
		p.Ignored++
		return
	}
	p.Resources = append(p.Resources, r)
}

func (p *Package) skip(name string, err error) {
	p.Skipped = append(p.Skipped, SkippedFile{Name: name, Reason: err.Error()})
}

// ParsePackageSpec parses "name#version" into separate components.
func ParsePackageSpec(spec string) (name, version string) {
	parts := strings.SplitN(spec, "#", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return spec, ""
}

func isResourceFile(name string) bool {
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	return name != "package.json" && name != ".index.json"
}

func isTgz(path string) bool {
	return strings.HasSuffix(path, ".tgz") || strings.HasSuffix(path, ".tar.gz")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
