package sources

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// SourceConfig describes one scraped listing site.
type SourceConfig struct {
	Name         string   `toml:"name"`
	ListingURLs  []string `toml:"listing_urls"`
	AllowedHosts []string `toml:"allowed_hosts"`
	// DetailPattern matches absolute detail-page URLs on listing pages.
	DetailPattern string `toml:"detail_pattern"`
	// PagePattern matches further listing pages to crawl. Optional.
	PagePattern string `toml:"page_pattern"`
	// IDPattern extracts the source event id from a detail URL via its
	// first capture group. The full URL is used when it does not match.
	IDPattern string `toml:"id_pattern"`
	Days      int    `toml:"days"`
	Hours     []int  `toml:"hours"`
	Disabled  bool   `toml:"disabled"`
}

// CronSpec returns the five-field schedule for the configured hours.
func (c SourceConfig) CronSpec() string {
	hours := make([]string, len(c.Hours))
	for i, h := range c.Hours {
		hours[i] = strconv.Itoa(h)
	}
	return fmt.Sprintf("0 %s * * *", strings.Join(hours, ","))
}

// Validate checks the entry and compiles its patterns.
func (c SourceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if len(c.ListingURLs) == 0 {
		return fmt.Errorf("source %s: at least one listing url is required", c.Name)
	}
	if len(c.AllowedHosts) == 0 {
		return fmt.Errorf("source %s: allowed_hosts is required", c.Name)
	}
	if c.Days <= 0 {
		return fmt.Errorf("source %s: days must be positive, got %d", c.Name, c.Days)
	}
	if len(c.Hours) == 0 {
		return fmt.Errorf("source %s: at least one schedule hour is required", c.Name)
	}
	for _, h := range c.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("source %s: invalid hour %d", c.Name, h)
		}
	}
	for field, pattern := range map[string]string{
		"detail_pattern": c.DetailPattern,
		"page_pattern":   c.PagePattern,
		"id_pattern":     c.IDPattern,
	} {
		if pattern == "" {
			if field == "detail_pattern" {
				return fmt.Errorf("source %s: detail_pattern is required", c.Name)
			}
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("source %s: invalid %s: %w", c.Name, field, err)
		}
	}
	return nil
}

// Registry is the set of configured sources.
type Registry struct {
	Sources []SourceConfig `toml:"source"`
}

// DefaultRegistry returns the built-in Ostrava sources.
func DefaultRegistry() Registry {
	return Registry{Sources: []SourceConfig{
		{
			Name:          "visitostrava",
			ListingURLs:   []string{"https://www.visitostrava.eu/cz/akce/rodina/"},
			AllowedHosts:  []string{"www.visitostrava.eu", "visitostrava.eu"},
			DetailPattern: `^https?://www\.visitostrava\.eu/cz/akce/rodina/\d+-[^/]+\.html$`,
			PagePattern:   `^https?://www\.visitostrava\.eu/cz/akce/rodina/\?from=\d+`,
			IDPattern:     `/cz/akce/rodina/(\d+)-`,
			Days:          14,
			Hours:         []int{6, 18},
		},
		{
			Name:          "allevents",
			ListingURLs:   []string{"https://allevents.in/ostrava/kids"},
			AllowedHosts:  []string{"allevents.in", "www.allevents.in"},
			DetailPattern: `^https?://allevents\.in/ostrava/[^/?#]+/\d+`,
			IDPattern:     `/(\d+)(?:[/?#]|$)`,
			Days:          60,
			Hours:         []int{7, 19},
		},
		{
			Name:          "kulturajih",
			ListingURLs:   []string{"https://www.kulturajih.cz/program/deti/"},
			AllowedHosts:  []string{"www.kulturajih.cz", "kulturajih.cz"},
			DetailPattern: `^https?://www\.kulturajih\.cz/akce/[^/]+/?$`,
			IDPattern:     `/akce/([^/]+)/?$`,
			Days:          30,
			Hours:         []int{8, 20},
		},
		{
			Name:          "kudyznudy",
			ListingURLs:   []string{"https://www.kudyznudy.cz/kalendar-akci?region=moravskoslezsky-kraj&city=ostrava&pro=rodiny-s-detmi"},
			AllowedHosts:  []string{"www.kudyznudy.cz", "kudyznudy.cz"},
			DetailPattern: `^https?://www\.kudyznudy\.cz/akce/[^/?#]+`,
			IDPattern:     `/akce/([^/?#]+)`,
			Days:          30,
			Hours:         []int{9, 21},
		},
	}}
}

// LoadRegistry reads a TOML registry from path. An empty path returns the
// defaults.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	var reg Registry
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		return Registry{}, fmt.Errorf("failed to read source registry %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return Registry{}, err
	}
	return reg, nil
}

// Validate checks every entry and rejects duplicate names.
func (r Registry) Validate() error {
	seen := make(map[string]struct{}, len(r.Sources))
	for _, src := range r.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate source %s", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

// Enabled returns the sources that are not disabled.
func (r Registry) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.Sources))
	for _, src := range r.Sources {
		if !src.Disabled {
			out = append(out, src)
		}
	}
	return out
}

// Lookup returns the named source.
func (r Registry) Lookup(name string) (SourceConfig, bool) {
	for _, src := range r.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}
