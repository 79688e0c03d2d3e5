// Package registry loads the catalog of recommendation sources.
package registry

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/stockleads/internal/extract"
	"github.com/sells-group/stockleads/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the ordered set of known sources. Order is the configured
// source order used for aggregation.
type Catalog struct {
	Sources []model.SourceProfile `yaml:"sources"`
}

// LoadCatalog reads a catalog file. An empty path loads the built-in
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "registry: read catalog")
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal catalog")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Sources) == 0 {
		return eris.New("registry: catalog has no sources")
	}

	var errs []string
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		p := &c.Sources[i]
		p.Name = strings.TrimSpace(p.Name)
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("source %s: name is required", label))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("source %s: duplicate name", label))
		}
		seen[p.Name] = true

		if p.Mode == "" {
			p.Mode = model.ModeStatic
		}
		p.Mode = model.RenderMode(strings.ToUpper(string(p.Mode)))
		if p.Mode != model.ModeStatic && p.Mode != model.ModeRendered {
			errs = append(errs, fmt.Sprintf("source %s: unknown mode %q", label, p.Mode))
		}

		if len(p.URLs) == 0 {
			errs = append(errs, fmt.Sprintf("source %s: at least one url is required", label))
		}
		for _, u := range p.URLs {
			if !validURL(u) {
				errs = append(errs, fmt.Sprintf("source %s: invalid url %q", label, u))
			}
		}
		if p.WarmupURL != "" && !validURL(p.WarmupURL) {
			errs = append(errs, fmt.Sprintf("source %s: invalid warmup_url %q", label, p.WarmupURL))
		}

		if p.MinDelayMS < 0 || p.MaxDelayMS < 0 {
			errs = append(errs, fmt.Sprintf("source %s: delays must be >= 0", label))
		}
		if p.MaxDelayMS > 0 && p.MinDelayMS > p.MaxDelayMS {
			errs = append(errs, fmt.Sprintf("source %s: min_delay_ms must be <= max_delay_ms", label))
		}
		if p.MaxRetries != nil && *p.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("source %s: max_retries must be >= 0", label))
		}
		if _, err := extract.ParseKinds(p.Chain); err != nil {
			errs = append(errs, fmt.Sprintf("source %s: %v", label, err))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("registry: invalid catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Names returns the source names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Sources))
	for i, p := range c.Sources {
		names[i] = p.Name
	}
	return names
}

// Get returns the named profile.
func (c *Catalog) Get(name string) (model.SourceProfile, bool) {
	for _, p := range c.Sources {
		if p.Name == name {
			return p, true
		}
	}
	return model.SourceProfile{}, false
}

// Select resolves names against the catalog. An empty selection means every
// source. Selected profiles keep catalog order; names that match nothing are
// returned as unknown, in the order given.
func (c *Catalog) Select(names []string) (selected []model.SourceProfile, unknown []string) {
	if len(names) == 0 {
		return append([]model.SourceProfile(nil), c.Sources...), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || want[n] {
			continue
		}
		want[n] = true
		if _, ok := c.Get(n); !ok {
			unknown = append(unknown, n)
		}
	}
	for _, p := range c.Sources {
		if want[p.Name] {
			selected = append(selected, p)
		}
	}
	return selected, unknown
}
