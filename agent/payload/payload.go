// Package payload binds one JSON Schema per handler and validates every
// structured payload before it leaves that handler.
package payload

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const baseFile = "_base.json"

type schemaSet map[contractx.ContentType]*openapi3.Schema

// Validator holds the compiled per-content-type base shapes and per-handler schemas.
type Validator struct {
	base     schemaSet
	handlers map[string]schemaSet
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	v := &Validator{handlers: make(map[string]schemaSet, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		set, err := parseSchemaSet(raw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", entry.Name(), err)
		}
		if entry.Name() == baseFile {
			v.base = set
			continue
		}
		v.handlers[strings.TrimSuffix(entry.Name(), ".json")] = set
	}

	for _, ct := range []contractx.ContentType{contractx.ContentText, contractx.ContentImage, contractx.ContentButtons, contractx.ContentChart} {
		if v.base[ct] == nil {
			return nil, fmt.Errorf("base schema for %s is missing", ct)
		}
	}
	return v, nil
}

func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Keys lists the handler keys that have a bound schema.
func (v *Validator) Keys() []string {
	out := make([]string, 0, len(v.handlers))
	for k := range v.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (v *Validator) Has(key string) bool {
	_, ok := v.handlers[key]
	return ok
}

// Allowed reports the content types a handler may emit.
func (v *Validator) Allowed(key string) []contractx.ContentType {
	set := v.handlers[key]
	out := make([]contractx.ContentType, 0, len(set))
	for ct := range set {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks resp against the content-type base shape and the handler schema.
func (v *Validator) Validate(key string, resp contractx.AgentResponse) error {
	set, ok := v.handlers[key]
	if !ok {
		return fmt.Errorf("%w: no schema bound to agent=%s", contractx.ErrSchemaViolation, key)
	}
	if !resp.ContentType.Valid() {
		return fmt.Errorf("%w: agent=%s returned content type=%q", contractx.ErrSchemaViolation, key, resp.ContentType)
	}
	handlerSchema, ok := set[resp.ContentType]
	if !ok {
		return fmt.Errorf("%w: agent=%s may not return %s", contractx.ErrSchemaViolation, key, resp.ContentType)
	}

	doc, err := normalize(resp.Payload)
	if err != nil {
		return fmt.Errorf("%w: agent=%s: %v", contractx.ErrSchemaViolation, key, err)
	}
	if err := v.base[resp.ContentType].VisitJSON(doc); err != nil {
		return fmt.Errorf("%w: agent=%s %s shape: %v", contractx.ErrSchemaViolation, key, resp.ContentType, err)
	}
	if err := handlerSchema.VisitJSON(doc); err != nil {
		return fmt.Errorf("%w: agent=%s: %v", contractx.ErrSchemaViolation, key, err)
	}
	return nil
}

func parseSchemaSet(raw []byte) (schemaSet, error) {
	var byType map[string]*openapi3.Schema
	if err := json.Unmarshal(raw, &byType); err != nil {
		return nil, err
	}
	set := make(schemaSet, len(byType))
	for name, s := range byType {
		ct, err := contractx.ParseContentType(name)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("schema for %s is null", name)
		}
		set[ct] = s
	}
	return set, nil
}

// normalize turns typed Go values into the decoded JSON form the schema visitor expects.
func normalize(p contractx.Payload) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
