package templates

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// DefaultDistDir is used for templates the registry does not know about.
const DefaultDistDir = "build"

var ErrInvalidTemplate = errors.New("invalid template")

// Template is a project scaffold with its build output configuration.
type Template struct {
	Name             string `yaml:"name" json:"name"`
	NiceName         string `yaml:"niceName,omitempty" json:"niceName,omitempty"`
	DistDir          string `yaml:"distDir" json:"distDir"`
	StaticDeployment bool   `yaml:"staticDeployment,omitempty" json:"staticDeployment"`
}

func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidTemplate)
	}
	if t.DistDir == "" {
		return fmt.Errorf("%w: %s: distDir cannot be empty", ErrInvalidTemplate, t.Name)
	}
	return nil
}

var builtin = []Template{
	{Name: "@dojo/cli-create-app", NiceName: "Dojo", DistDir: "output/dist"},
	{Name: "angular-cli", NiceName: "Angular", DistDir: "dist"},
	{Name: "create-react-app", NiceName: "React", DistDir: "build"},
	{Name: "create-react-app-typescript", NiceName: "React + TS", DistDir: "build"},
	{Name: "cxjs", NiceName: "CxJS", DistDir: "dist"},
	{Name: "ember", NiceName: "Ember", DistDir: "dist"},
	{Name: "gatsby", NiceName: "Gatsby", DistDir: "public"},
	{Name: "gridsome", NiceName: "Gridsome", DistDir: "dist"},
	{Name: "mdx-deck", NiceName: "MDX Deck", DistDir: "dist"},
	{Name: "next", NiceName: "Next.js", DistDir: "out"},
	{Name: "nuxt", NiceName: "Nuxt.js", DistDir: "dist"},
	{Name: "parcel", NiceName: "Vanilla", DistDir: "dist"},
	{Name: "preact-cli", NiceName: "Preact", DistDir: "build"},
	{Name: "quasar", NiceName: "Quasar", DistDir: "dist/spa"},
	{Name: "reason", NiceName: "Reason", DistDir: "build"},
	{Name: "sapper", NiceName: "Sapper", DistDir: "__sapper__/export"},
	{Name: "static", NiceName: "Static", DistDir: "./", StaticDeployment: true},
	{Name: "styleguidist", NiceName: "Styleguidist", DistDir: "styleguide"},
	{Name: "svelte", NiceName: "Svelte", DistDir: "public"},
	{Name: "vue-cli", NiceName: "Vue", DistDir: "dist"},
	{Name: "vuepress", NiceName: "VuePress", DistDir: ".vuepress/dist"},
}

// Registry resolves template names to their definitions. It is read-only
// after construction.
type Registry struct {
	templates map[string]Template
}

// NewRegistry returns a registry with the built-in templates. Overrides
// replace built-ins with the same name or add new ones.
func NewRegistry(overrides ...Template) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]Template, len(builtin)+len(overrides)),
	}
	for _, t := range builtin {
		r.templates[t.Name] = t
	}

	seen := make(map[string]struct{}, len(overrides))
	for _, t := range overrides {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate template %q", ErrInvalidTemplate, t.Name)
		}
		seen[t.Name] = struct{}{}
		r.templates[t.Name] = t
	}

	return r, nil
}

// Get returns the definition for name. Unknown names get a generic
// definition with DefaultDistDir.
func (r *Registry) Get(name string) Template {
	if t, ok := r.templates[name]; ok {
		return t
	}
	return Template{Name: name, DistDir: DefaultDistDir}
}

// Lookup is like Get but reports whether name is known.
func (r *Registry) Lookup(name string) (Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// List returns all known templates sorted by name.
func (r *Registry) List() []Template {
	names := slices.Sorted(maps.Keys(r.templates))

	list := make([]Template, 0, len(names))
	for _, name := range names {
		list = append(list, r.templates[name])
	}
	return list
}
