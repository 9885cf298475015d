package models

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed occasions.yaml
var defaultOccasions []byte

// Occasion is a themed event a logo variation can be tailored to
type Occasion struct {
	Value    string `yaml:"value" json:"value"`
	Label    string `yaml:"label" json:"label"`
	Category string `yaml:"category" json:"category"`
	Tone     string `yaml:"tone" json:"tone"`
	Color    string `yaml:"color" json:"color"`
	ImageURL string `yaml:"imageUrl" json:"imageUrl"`
	Months   []int  `yaml:"months" json:"months"` // 0-11 (Jan-Dec)
}

// InMonth reports whether the occasion is featured in the given month (0-11)
func (o *Occasion) InMonth(month int) bool {
	for _, m := range o.Months {
		if m == month {
			return true
		}
	}
	return false
}

type occasionFile struct {
	Occasions []*Occasion `yaml:"occasions"`
}

// ParseOccasions parses an occasions catalog document
func ParseOccasions(data []byte) ([]*Occasion, error) {
	var file occasionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse occasions catalog: %w", err)
	}

	for i, o := range file.Occasions {
		if o == nil || o.Value == "" {
			return nil, fmt.Errorf("occasion %d has no value", i)
		}
		for _, m := range o.Months {
			if m < 0 || m > 11 {
				return nil, fmt.Errorf("occasion %s has invalid month %d", o.Value, m)
			}
		}
	}

	return file.Occasions, nil
}

// OccasionRegistry manages the reference catalog of occasions
type OccasionRegistry struct {
	mu        sync.RWMutex
	occasions map[string]*Occasion
	order     []string
}

// NewOccasionRegistry creates an empty registry
func NewOccasionRegistry() *OccasionRegistry {
	return &OccasionRegistry{
		occasions: make(map[string]*Occasion),
	}
}

// Load replaces the registry contents with the catalog at path.
// An empty path loads the built-in catalog.
func (r *OccasionRegistry) Load(path string) error {
	data := defaultOccasions
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read occasions catalog: %w", err)
		}
	}

	list, err := ParseOccasions(data)
	if err != nil {
		return err
	}

	occasions := make(map[string]*Occasion, len(list))
	order := make([]string, 0, len(list))
	for _, o := range list {
		if _, dup := occasions[o.Value]; dup {
			// first entry wins, matching seed behavior
			continue
		}
		occasions[o.Value] = o
		order = append(order, o.Value)
	}

	r.mu.Lock()
	r.occasions = occasions
	r.order = order
	r.mu.Unlock()
	return nil
}

// Get returns an occasion by value
func (r *OccasionRegistry) Get(value string) (*Occasion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.occasions[value]
	return o, ok
}

// List returns occasions in catalog order, optionally filtered by category
// (case-insensitive) and month. A negative month disables month filtering.
func (r *OccasionRegistry) List(category string, month int) []*Occasion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Occasion, 0, len(r.order))
	for _, v := range r.order {
		o := r.occasions[v]
		if category != "" && !strings.EqualFold(o.Category, category) {
			continue
		}
		if month >= 0 && !o.InMonth(month) {
			continue
		}
		result = append(result, o)
	}
	return result
}

// Categories returns the distinct categories, sorted
func (r *OccasionRegistry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var cats []string
	for _, o := range r.occasions {
		if _, ok := seen[o.Category]; ok {
			continue
		}
		seen[o.Category] = struct{}{}
		cats = append(cats, o.Category)
	}
	sort.Strings(cats)
	return cats
}

// Len returns the number of loaded occasions
func (r *OccasionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
