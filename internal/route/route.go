// Package route maps meeting categories to event destinations.
//
// The mapping replaces a hardcoded category chain with a declarative
// table: each recognized category either routes to a named voice
// channel or to a free-text external location. Unknown categories are
// not an error; they mean "this calendar entry is not ours to sync".
package route

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Route describes the destination for one category.
type Route struct {
	// ChannelName is the voice channel hosting the event. Empty when
	// External is set.
	ChannelName string

	// External marks categories whose events carry a free-text
	// location (the meeting's external link) instead of a channel.
	External bool
}

// Table maps category names to routes.
type Table map[string]Route

// Default returns the built-in category table.
func Default() Table {
	return Table{
		"Team":        {ChannelName: "Dev"},
		"Design":      {ChannelName: "Design"},
		"Programming": {ChannelName: "Programming - The Git Pit"},
		"Art":         {ChannelName: "Art"},
		"Audio":       {ChannelName: "Audio"},
		"External":    {External: true},
	}
}

// Resolve looks up the route for a category. ok is false for
// unrecognized categories, which callers skip silently.
func (t Table) Resolve(category string) (Route, bool) {
	r, ok := t[category]
	return r, ok
}

// fileEntry is the YAML shape of one category override.
type fileEntry struct {
	Channel  string `yaml:"channel"`
	External bool   `yaml:"external"`
}

type routesFile struct {
	Categories map[string]fileEntry `yaml:"categories"`
}

// LoadFile merges category overrides from a YAML file into a copy of
// the table. An entry may name a channel or set external, not both.
//
// Example:
//
//	categories:
//	  Programming:
//	    channel: "Programming"
//	  Workshop:
//	    external: true
func (t Table) LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes file %s: %w", path, err)
	}

	merged := make(Table, len(t)+len(f.Categories))
	for k, v := range t {
		merged[k] = v
	}
	for name, entry := range f.Categories {
		if entry.External && entry.Channel != "" {
			return nil, fmt.Errorf("routes file %s: category %q sets both channel and external", path, name)
		}
		if !entry.External && entry.Channel == "" {
			return nil, fmt.Errorf("routes file %s: category %q needs a channel or external: true", path, name)
		}
		merged[name] = Route{ChannelName: entry.Channel, External: entry.External}
	}
	return merged, nil
}
