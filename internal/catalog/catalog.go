// Package catalog loads the menu and payment instructions embedded in the
// dialogue system prompt.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Item is one menu entry.
type Item struct {
	Name        string `yaml:"name"`
	Price       int64  `yaml:"price"`
	Description string `yaml:"description"`
}

// Category groups items under a heading; Names holds per-language headings.
type Category struct {
	Name  string            `yaml:"name"`
	Names map[string]string `yaml:"names"`
	Items []Item            `yaml:"items"`
}

// Catalog is the menu offered by the dialogue.
type Catalog struct {
	Currency   string            `yaml:"currency"`
	Payment    map[string]string `yaml:"payment"`
	Categories []Category        `yaml:"categories"`
}

var menuHeadings = map[string]string{
	"ru": "МЕНЮ",
	"kk": "МӘЗІР",
	"en": "MENU",
}

// Default returns the built-in menu.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads a YAML catalog from path; an empty path yields Default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}
	for _, cat := range c.Categories {
		for _, item := range cat.Items {
			if strings.TrimSpace(item.Name) == "" {
				return nil, fmt.Errorf("catalog category %q has an unnamed item", cat.Name)
			}
			if item.Price < 0 {
				return nil, fmt.Errorf("catalog item %q has a negative price", item.Name)
			}
		}
	}
	return &c, nil
}

// Render formats the menu for the given language.
func (c *Catalog) Render(lang string) string {
	heading, ok := menuHeadings[lang]
	if !ok {
		heading = menuHeadings["ru"]
	}
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString(":\n\n")
	for _, cat := range c.Categories {
		name := cat.Name
		if localized := strings.TrimSpace(cat.Names[lang]); localized != "" {
			name = localized
		}
		fmt.Fprintf(&b, "-- %s --\n", name)
		for _, item := range cat.Items {
			fmt.Fprintf(&b, "  - %s: %d%s", item.Name, item.Price, c.Currency)
			if item.Description != "" {
				fmt.Fprintf(&b, " (%s)", item.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// PaymentInfo returns payment instructions for lang, falling back to Russian.
func (c *Catalog) PaymentInfo(lang string) string {
	if info := strings.TrimSpace(c.Payment[lang]); info != "" {
		return info
	}
	return strings.TrimSpace(c.Payment["ru"])
}
