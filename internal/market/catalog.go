package market

import (
	"os"
	"sort"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
)

// CapabilityDef describes one routable capability tag.
type CapabilityDef struct {
	Tag         string `yaml:"tag"`
	Description string `yaml:"description"`
	MinPayment  int64  `yaml:"min_payment"`
}

// CapabilityCatalog enumerates the capabilities the marketplace routes.
type CapabilityCatalog struct {
	defs map[string]CapabilityDef
}

func DefaultCatalog() *CapabilityCatalog {
	return newCatalog([]CapabilityDef{
		{Tag: constants.CapabilityScrape, Description: "fetch and extract a web page"},
		{Tag: constants.CapabilityInference, Description: "run a model inference request"},
		{Tag: constants.CapabilityTask, Description: "agent marketplace task, result reviewed by the verification oracle"},
	})
}

// LoadCatalog reads capability definitions from a yaml file. Entries
// extend or override the defaults; the built-in tags stay routable.
func LoadCatalog(path string) (*CapabilityCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read capability file %s: %w", path, err)
	}

	var defs []CapabilityDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, xerrors.Errorf("parse capability file %s: %w", path, err)
	}

	catalog := DefaultCatalog()
	for _, def := range defs {
		if def.Tag == "" {
			continue
		}
		catalog.defs[def.Tag] = def
	}
	return catalog, nil
}

func newCatalog(defs []CapabilityDef) *CapabilityCatalog {
	c := &CapabilityCatalog{defs: map[string]CapabilityDef{}}
	for _, def := range defs {
		c.defs[def.Tag] = def
	}
	return c
}

func (c *CapabilityCatalog) Valid(tag string) bool {
	_, ok := c.defs[tag]
	return ok
}

func (c *CapabilityCatalog) MinPayment(tag string) int64 {
	return c.defs[tag].MinPayment
}

func (c *CapabilityCatalog) Tags() []string {
	tags := make([]string, 0, len(c.defs))
	for tag := range c.defs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
