package planner

import (
	"fmt"
	"strings"

	"github.com/ministore/recordstore/recordstore/storage"
)

const (
	ModifierIsSet   = "isset"
	ModifierChanged = "changed"
	ModifierLength  = "length"
	ModifierEach    = "each"
	ModifierLower   = "lower"
)

var modifiers = map[string]struct{}{
	ModifierIsSet:   {},
	ModifierChanged: {},
	ModifierLength:  {},
	ModifierEach:    {},
	ModifierLower:   {},
}

// ExtractModifiers splits "path:mod1:mod2" into the path and the known
// modifiers in order. Segments that are not modifiers stay in the path.
func ExtractModifiers(field string) (string, []string) {
	segments := strings.Split(field, ":")

	path := segments[0]
	var mods []string
	for _, seg := range segments[1:] {
		if _, ok := modifiers[seg]; ok {
			mods = append(mods, seg)
			continue
		}
		path += ":" + seg
	}
	return path, mods
}

// ApplyModifiers wraps a resolved column with the generic modifiers.
// :each and :changed need resolver support and are rejected here.
func ApplyModifiers(backend storage.Backend, r *ResolverResult, mods []string) (*ResolverResult, error) {
	for _, mod := range mods {
		switch mod {
		case ModifierLower:
			r.Identifier = "LOWER(" + backend.Text(r.Identifier) + ")"
		case ModifierLength:
			r.Identifier = backend.JSONArrayLength(r.Identifier)
			r.NoCoalesce = true
		case ModifierIsSet:
			r.Identifier = fmt.Sprintf("(%s IS NOT NULL AND %s != '')", r.Identifier, backend.Text(r.Identifier))
			r.NoCoalesce = true
		default:
			return nil, fmt.Errorf("modifier :%s is not supported here", mod)
		}
	}
	return r, nil
}
