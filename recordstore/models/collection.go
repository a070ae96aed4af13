package models

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Collection describes one record table and its access rules.
//
// A nil rule allows superusers only, an empty rule allows everyone and any
// other value is a filter expression evaluated against the record.
type Collection struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Fields     []Field `json:"fields" yaml:"fields"`
	ListRule   *string `json:"listRule" yaml:"listRule"`
	ViewRule   *string `json:"viewRule" yaml:"viewRule"`
	UpdateRule *string `json:"updateRule" yaml:"updateRule"`
}

// FieldByName returns a user or system field.
func (c *Collection) FieldByName(name string) (Field, bool) {
	for _, f := range systemFields() {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AllFields returns the system fields followed by the user fields.
func (c *Collection) AllFields() []Field {
	return append(systemFields(), c.Fields...)
}

func (c *Collection) Validate() error {
	if !nameRe.MatchString(c.Name) {
		return fmt.Errorf("invalid collection name %q (must match %s)", c.Name, nameRe.String())
	}
	if strings.HasPrefix(c.Name, "_") {
		return fmt.Errorf("collection name %q: leading underscore is reserved", c.Name)
	}
	if strings.Contains(c.Name, "_via_") {
		return fmt.Errorf("collection name %q must not contain _via_", c.Name)
	}

	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if !nameRe.MatchString(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
		if strings.Contains(f.Name, "_via_") {
			return fmt.Errorf("field name %q must not contain _via_", f.Name)
		}
		switch f.Name {
		case FieldNameID, FieldNameCreated, FieldNameUpdated, "collectionId", "collectionName":
			return fmt.Errorf("field name %q is reserved", f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if _, ok := fieldTypes[f.Type]; !ok {
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Options.MaxSelect < 0 {
			return fmt.Errorf("field %q: maxSelect must not be negative", f.Name)
		}
		if f.Type == FieldRelation && f.Options.CollectionID == "" {
			return fmt.Errorf("field %q: relation requires options.collectionId", f.Name)
		}
	}
	return nil
}

// TableName is the table backing the collection.
func (c *Collection) TableName() string {
	return c.Name
}
