// Package plans holds the deployment plans shipped with rollupctl.
package plans

import (
	_ "embed"
	"fmt"
	"sort"
)

// DefaultName is the file name the default plan is written to.
const DefaultName = "plan.yaml"

// DefaultTemplate names the plan written when no template is given.
const DefaultTemplate = "l1-rollup"

// L1Rollup is the plan for the rollup's layer-1 contracts.
//
//go:embed l1-rollup.yaml
var L1Rollup []byte

// L2Rollup is the plan for the rollup's layer-2 contracts.
//
//go:embed l2-rollup.yaml
var L2Rollup []byte

var templates = map[string][]byte{
	"l1-rollup": L1Rollup,
	"l2-rollup": L2Rollup,
}

// Template returns the embedded plan registered under name.
func Template(name string) ([]byte, error) {
	data, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown plan template %q (want one of %v)", name, Names())
	}
	return data, nil
}

// Names lists the embedded plan templates in order.
func Names() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
