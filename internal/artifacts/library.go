package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Bidon15/rollupctl/internal/plan"
)

// Library is a set of artifacts indexed by contract name.
type Library struct {
	byName map[string]*ContractArtifact
}

// NewLibrary builds a library from already parsed artifacts.
func NewLibrary(artifacts map[string]*ContractArtifact) *Library {
	lib := &Library{byName: make(map[string]*ContractArtifact, len(artifacts))}
	for name, a := range artifacts {
		if a.ContractName == "" {
			a.ContractName = name
		}
		lib.byName[name] = a
	}
	return lib
}

// Get returns the artifact for contract name.
func (l *Library) Get(name string) (*ContractArtifact, error) {
	a, ok := l.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissing, name)
	}
	return a, nil
}

// Names returns the contract names in the library, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byName))
	for n := range l.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RequiredNames lists the artifacts a plan needs: every component's
// contract, plus the proxy contract when any component is proxied.
func RequiredNames(p *plan.Plan) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, d := range p.Descriptors() {
		add(d.ArtifactName())
		if d.Proxy {
			add(p.Proxy().ArtifactName())
		}
	}
	return names
}

// LoadFromDirectory walks dir for <Name>.json files and loads the requested
// names. Hardhat (artifacts/contracts/X.sol/X.json) and Foundry
// (out/X.sol/X.json) layouts both work. Every missing name is reported.
func LoadFromDirectory(dir string, names []string) (*Library, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifacts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifacts directory: %s is not a directory", dir)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	found := make(map[string][]string)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		if !strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".dbg.json") {
			return nil
		}
		name := strings.TrimSuffix(base, ".json")
		if wanted[name] {
			found[name] = append(found[name], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	var missing, ambiguous []string
	loaded := make(map[string]*ContractArtifact, len(names))
	var errs []error
	for _, n := range names {
		paths := found[n]
		switch {
		case len(paths) == 0:
			missing = append(missing, n)
			continue
		case len(paths) > 1:
			ambiguous = append(ambiguous, fmt.Sprintf("%s (%s)", n, strings.Join(paths, ", ")))
			continue
		}

		data, err := os.ReadFile(paths[0])
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", paths[0], err))
			continue
		}
		a, err := ParseArtifact(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", paths[0], err))
			continue
		}
		a.Path = paths[0]
		loaded[n] = a
	}

	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", ")))
	}
	if len(ambiguous) > 0 {
		errs = append(errs, fmt.Errorf("%w: ambiguous artifacts %s", ErrInvalid, strings.Join(ambiguous, "; ")))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewLibrary(loaded), nil
}
