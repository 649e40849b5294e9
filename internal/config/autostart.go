package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// AutostartEntry describes one traversal to start at boot when its tab has
// no persisted state. Exactly one of TabID or TabURLContains selects the tab.
type AutostartEntry struct {
	TabID          string   `yaml:"tab_id"`
	TabURLContains string   `yaml:"tab_url_contains"`
	URLs           []string `yaml:"urls"`
	IntervalMS     int64    `yaml:"interval_ms"`
	Interval       string   `yaml:"interval"` // Go duration, e.g. "30s"; overrides interval_ms
}

// AutostartFile is the top-level YAML document.
type AutostartFile struct {
	Traversals []AutostartEntry `yaml:"traversals"`
}

// LoadAutostart reads and validates an autostart YAML file.
// Returns an os.ErrNotExist-wrapped error if the file is absent.
func LoadAutostart(path string) (*AutostartFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("autostart config: %w", err)
	}
	var cfg AutostartFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("autostart config: %w", err)
	}
	for i := range cfg.Traversals {
		e := &cfg.Traversals[i]
		e.TabID = strings.TrimSpace(e.TabID)
		e.TabURLContains = strings.TrimSpace(e.TabURLContains)
		if (e.TabID == "") == (e.TabURLContains == "") {
			return nil, fmt.Errorf("autostart config: traversals[%d] needs exactly one of tab_id or tab_url_contains", i)
		}
		if len(e.URLs) == 0 {
			return nil, fmt.Errorf("autostart config: traversals[%d] missing urls", i)
		}
		if e.Interval != "" {
			d, err := time.ParseDuration(e.Interval)
			if err != nil {
				return nil, fmt.Errorf("autostart config: traversals[%d] interval: %w", i, err)
			}
			e.IntervalMS = d.Milliseconds()
		}
		if e.IntervalMS <= 0 {
			return nil, fmt.Errorf("autostart config: traversals[%d] interval must be positive", i)
		}
	}
	return &cfg, nil
}

// ResolveTab picks the tab this entry targets from the open tabs. An entry
// with TabID is used as-is even when the tab is not listed.
func (e AutostartEntry) ResolveTab(tabs []types.TabInfo) (string, bool) {
	if e.TabID != "" {
		return e.TabID, true
	}
	needle := strings.ToLower(e.TabURLContains)
	for _, t := range tabs {
		if strings.Contains(strings.ToLower(t.URL), needle) {
			return t.TabID, true
		}
	}
	return "", false
}
