package inbound

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Validator checks inbound event data against JSON Schema documents.
type Validator struct {
	mu      sync.RWMutex
	cache   map[string]*jsonschema.Schema // keyed by schema JSON content
	printer *message.Printer
}

// NewValidator creates a new schema validator.
func NewValidator() *Validator {
	return &Validator{
		cache:   make(map[string]*jsonschema.Schema),
		printer: message.NewPrinter(language.English),
	}
}

// Validate checks data against schema. A nil schema accepts anything.
// Violations come back as one FieldError per failing instance location,
// keyed by JSON pointer ("/new_status").
func (v *Validator) Validate(schema, data any) ([]goerrors.FieldError, error) {
	if schema == nil {
		return nil, nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return nil, err
	}

	verr := compiled.Validate(data)
	if verr == nil {
		return nil, nil
	}

	ve, ok := verr.(*jsonschema.ValidationError)
	if !ok {
		return nil, verr
	}
	return v.fieldErrors(ve), nil
}

// compile returns a compiled schema, using the cache for previously-seen schemas.
func (v *Validator) compile(schema any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	sum := sha256.Sum256(raw)
	url := "hub://inbound/schema/" + hex.EncodeToString(sum[:8]) + ".json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	if cached, ok := v.cache[key]; ok {
		compiled = cached
	} else {
		v.cache[key] = compiled
	}
	v.mu.Unlock()

	return compiled, nil
}

// fieldErrors flattens the cause tree to its leaves.
func (v *Validator) fieldErrors(ve *jsonschema.ValidationError) []goerrors.FieldError {
	var out []goerrors.FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, goerrors.FieldError{
				Field:   "/" + strings.Join(e.InstanceLocation, "/"),
				Message: e.ErrorKind.LocalizedString(v.printer),
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
