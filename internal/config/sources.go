package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source describes one external feed to crawl.
type Source struct {
	Name     string `yaml:"name"`
	FeedURL  string `yaml:"feed_url"`
	Category string `yaml:"category"`
	Logo     string `yaml:"logo,omitempty"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed-source list from a YAML file. When path is empty
// the built-in default list is returned.
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	for i, s := range file.Sources {
		if s.Name == "" || s.FeedURL == "" {
			return nil, fmt.Errorf("source %d: name and feed_url are required", i)
		}
	}

	return file.Sources, nil
}

// DefaultSources returns the standard Archyards source list.
func DefaultSources() []Source {
	return []Source{
		{Name: "Dezeen", FeedURL: "https://www.dezeen.com/feed/", Category: "architecture", Logo: "https://www.dezeen.com/favicon.ico"},
		{Name: "ArchDaily", FeedURL: "https://www.archdaily.com/feed", Category: "architecture", Logo: "https://www.archdaily.com/favicon.ico"},
		{Name: "Designboom", FeedURL: "https://www.designboom.com/feed/", Category: "design", Logo: "https://www.designboom.com/favicon.ico"},
		{Name: "Wallpaper", FeedURL: "https://www.wallpaper.com/rss", Category: "design", Logo: "https://www.wallpaper.com/favicon.ico"},
		{Name: "Architectural Digest", FeedURL: "https://www.architecturaldigest.com/feed/rss", Category: "interior", Logo: "https://www.architecturaldigest.com/favicon.ico"},
		{Name: "Archinect", FeedURL: "https://archinect.com/feed/news", Category: "architecture", Logo: "https://archinect.com/favicon.ico"},
		{Name: "Frame Magazine", FeedURL: "https://www.frameweb.com/rss", Category: "interior", Logo: "https://www.frameweb.com/favicon.ico"},
		{Name: "Metropolis", FeedURL: "https://metropolismag.com/feed/", Category: "architecture", Logo: "https://metropolismag.com/favicon.ico"},
	}
}
