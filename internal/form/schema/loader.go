package schema

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

//go:embed form.schema.json
var documentSchema string

const documentSchemaURL = "https://gen-live.local/schemas/registration-form.json"

var extensions = []string{".yaml", ".yml", ".json"}

// Source returns an organization's registration form.
type Source interface {
	Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error)
}

// Loader reads form documents named <org-slug>.{yaml,yml,json} from a
// directory. Documents are validated against the document schema, normalized
// and checked, then cached until Invalidate.
type Loader struct {
	dir      string
	document *jsonschema.Schema
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[id.OrgSlug]*models.FormSchema
	group singleflight.Group
}

type LoaderOption func(*Loader)

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader compiles the document schema and returns a loader for dir.
func NewLoader(dir string, opts ...LoaderOption) (*Loader, error) {
	compiled, err := compileDocumentSchema()
	if err != nil {
		return nil, err
	}
	l := &Loader{
		dir:      dir,
		document: compiled,
		logger:   slog.Default(),
		cache:    make(map[id.OrgSlug]*models.FormSchema),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func compileDocumentSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("add form document schema: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile form document schema: %w", err)
	}
	return compiled, nil
}

// Form returns the cached form for slug, loading it on first use.
func (l *Loader) Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error) {
	l.mu.RLock()
	cached, ok := l.cache[slug]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := l.group.Do(string(slug), func() (any, error) {
		form, err := l.load(slug)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[slug] = form
		l.mu.Unlock()
		l.logger.InfoContext(ctx, "registration form loaded",
			"org_slug", slug,
			"fields", len(form.Fields),
		)
		return form, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.FormSchema), nil
}

// Invalidate drops the cached form for slug so the next Form call rereads it.
func (l *Loader) Invalidate(slug id.OrgSlug) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, slug)
}

// Slugs lists the organizations that have a form document in the directory.
func (l *Loader) Slugs() ([]id.OrgSlug, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read form directory: %w", err)
	}
	seen := map[id.OrgSlug]bool{}
	var out []id.OrgSlug
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !isFormExtension(ext) {
			continue
		}
		slug, err := id.ParseOrgSlug(strings.TrimSuffix(e.Name(), ext))
		if err != nil || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
	}
	return out, nil
}

func (l *Loader) load(slug id.OrgSlug) (*models.FormSchema, error) {
	for _, ext := range extensions {
		path := filepath.Join(l.dir, string(slug)+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration form")
		}
		form, err := l.Parse(data, ext)
		if err != nil {
			return nil, err
		}
		if form.OrgSlug == "" {
			form.OrgSlug = slug
		}
		return form, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "registration form not found")
}

// Parse decodes a YAML or JSON form document, validates its shape and checks
// it. ext selects the decoder; anything but ".json" is read as YAML.
func (l *Loader) Parse(data []byte, ext string) (*models.FormSchema, error) {
	doc, err := decode(data, ext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "form document is not well formed")
	}
	if err := l.document.Validate(doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "form document does not match the form schema")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "form document is not well formed")
	}
	var form models.FormSchema
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "form document is not well formed")
	}
	Normalize(&form)
	if err := Check(&form); err != nil {
		return nil, err
	}
	return &form, nil
}

// decode returns the document as JSON-compatible values, which is what the
// schema validator expects.
func decode(data []byte, ext string) (any, error) {
	var doc any
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	// round-trip through JSON so YAML ints and maps take JSON shapes
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	doc = nil
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isFormExtension(ext string) bool {
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
