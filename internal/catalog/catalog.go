// Package catalog holds the static list of bookable services.
package catalog

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"storefront/backend/internal/platform/httpx"
)

//go:embed services.yaml
var servicesYAML []byte

// Service is one bookable service. Price is in minor units.
type Service struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Price       int64  `yaml:"price" json:"price"`
	Currency    string `yaml:"currency" json:"currency"`
}

// Catalog is an immutable, ordered set of services.
type Catalog struct {
	services []Service
	bySlug   map[string]Service
}

// Parse reads a catalog document. Slugs must be unique and prices non-negative.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Services []Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c := &Catalog{bySlug: make(map[string]Service, len(doc.Services))}
	for _, s := range doc.Services {
		if s.Slug == "" || s.Name == "" {
			return nil, fmt.Errorf("catalog: service without slug or name")
		}
		if s.Price < 0 {
			return nil, fmt.Errorf("catalog: %s has a negative price", s.Slug)
		}
		if _, dup := c.bySlug[s.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate slug %s", s.Slug)
		}
		s.Currency = strings.ToUpper(s.Currency)
		c.services = append(c.services, s)
		c.bySlug[s.Slug] = s
	}
	return c, nil
}

// Default returns the embedded catalog. It panics if the embedded file is invalid.
func Default() *Catalog {
	c, err := Parse(servicesYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the services in catalog order.
func (c *Catalog) All() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// Lookup returns the service with slug.
func (c *Catalog) Lookup(slug string) (Service, bool) {
	s, ok := c.bySlug[slug]
	return s, ok
}

// Handler serves GET /api/services.
func (c *Catalog) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": c.All()})
	}
}
