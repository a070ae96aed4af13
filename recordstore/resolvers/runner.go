package resolvers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

const (
	maxAliasLength = 60
	mmAliasPrefix  = "__mm_"
)

// runner resolves one field path. It walks the path segment by segment,
// joining related collections into the main query and, in parallel, into
// the multi-match subquery.
type runner struct {
	r     *RecordFieldResolver
	parts []string
	mods  []string

	collection *models.Collection
	alias      string
	mmAlias    string
	mmJoins    []join
	pending    []join
	multiMatch bool
	depth      int
}

func (r *RecordFieldResolver) newRunner(path string, mods []string) (*runner, error) {
	run := &runner{
		r:          r,
		parts:      strings.Split(path, "."),
		mods:       mods,
		collection: r.base,
		alias:      r.base.Name,
		mmAlias:    multiMatchAlias(r.base.Name),
	}

	if run.parts[0] != "@collection" {
		return run, nil
	}

	if len(run.parts) < 3 {
		return nil, fmt.Errorf("invalid @collection path %q", path)
	}

	name, alias, _ := strings.Cut(run.parts[1], ":")
	c, err := r.provider.FindCollection(name)
	if err != nil {
		return nil, err
	}

	joinAlias := segmentAlias("__collection", name)
	if alias != "" {
		joinAlias += "_a" + strconv.Itoa(len(alias)) + alias
	}
	joinAlias = shortenAlias(joinAlias)

	always := r.backend.Bool(true)
	run.pending = append(run.pending, join{table: sqlbuilder.Wrap(c.Name), alias: joinAlias, on: always})

	run.collection = c
	run.alias = joinAlias
	run.mmAlias = multiMatchAlias(joinAlias)
	run.mmJoins = append(run.mmJoins, join{table: sqlbuilder.Wrap(c.Name), alias: run.mmAlias, on: always})
	// every row of the joined collection is a candidate value
	run.multiMatch = true
	run.parts = run.parts[2:]

	return run, nil
}

func (run *runner) run() (*planner.ResolverResult, error) {
	for i := 0; i < len(run.parts); i++ {
		prop := run.parts[i]
		rest := run.parts[i+1:]

		field, ok := run.collection.FieldByName(prop)
		if !ok {
			if !strings.Contains(prop, "_via_") {
				return nil, fmt.Errorf("unknown field %q in collection %q", prop, run.collection.Name)
			}
			if err := run.joinBackRelation(prop); err != nil {
				return nil, err
			}
			if len(rest) == 0 {
				run.parts = append(run.parts, models.FieldNameID)
			}
			continue
		}

		if run.r.isHidden(field) {
			return nil, fmt.Errorf("field %q is not accessible", prop)
		}

		if len(rest) == 0 {
			return run.finalize(field)
		}

		switch field.Type {
		case models.FieldJSON, models.FieldGeoPoint:
			return run.finalizeJSON(field, rest)
		case models.FieldRelation:
			if !field.IsMultiple() && len(rest) == 1 && rest[0] == models.FieldNameID {
				return run.finalize(field)
			}
			if err := run.joinRelation(field); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("field %q of type %s has no sub fields", prop, field.Type)
		}
	}

	return nil, errors.New("empty field path")
}

func (run *runner) joinRelation(field models.Field) error {
	run.depth++
	if run.depth > MaxNestedRels {
		return fmt.Errorf("max nested relations reached (%d)", MaxNestedRels)
	}

	target, err := run.r.provider.FindCollection(field.Options.CollectionID)
	if err != nil {
		return err
	}

	newAlias := shortenAlias(segmentAlias(run.alias, field.Name))
	newMMAlias := multiMatchAlias(newAlias)
	src := column(run.alias, field.Name)
	mmSrc := column(run.mmAlias, field.Name)

	var on, mmOn string
	if field.IsMultiple() {
		on = run.inJSONArray(column(newAlias, models.FieldNameID), src)
		mmOn = run.inJSONArray(column(newMMAlias, models.FieldNameID), mmSrc)
		run.multiMatch = true
	} else {
		on = column(newAlias, models.FieldNameID) + " = " + src
		mmOn = column(newMMAlias, models.FieldNameID) + " = " + mmSrc
	}

	run.next(target, newAlias, newMMAlias, on, mmOn)
	return nil
}

// joinBackRelation joins the records of another collection whose relation
// field points at the active record ("posts_via_author").
func (run *runner) joinBackRelation(prop string) error {
	collName, fieldName, _ := strings.Cut(prop, "_via_")

	backColl, err := run.r.provider.FindCollection(collName)
	if err != nil {
		return err
	}

	backField, ok := backColl.FieldByName(fieldName)
	if !ok || backField.Type != models.FieldRelation {
		return fmt.Errorf("%q is not a relation field of collection %q", fieldName, collName)
	}
	if target := backField.Options.CollectionID; target != run.collection.ID && target != run.collection.Name {
		return fmt.Errorf("relation %s.%s does not point to %q", collName, fieldName, run.collection.Name)
	}
	if run.r.isHidden(backField) {
		return fmt.Errorf("field %q is not accessible", fieldName)
	}

	run.depth++
	if run.depth > MaxNestedRels {
		return fmt.Errorf("max nested relations reached (%d)", MaxNestedRels)
	}

	newAlias := shortenAlias(segmentAlias(run.alias, prop))
	newMMAlias := multiMatchAlias(newAlias)
	activeID := column(run.alias, models.FieldNameID)
	mmActiveID := column(run.mmAlias, models.FieldNameID)

	var on, mmOn string
	if backField.IsMultiple() {
		on = run.inJSONArray(activeID, column(newAlias, fieldName))
		mmOn = run.inJSONArray(mmActiveID, column(newMMAlias, fieldName))
	} else {
		on = column(newAlias, fieldName) + " = " + activeID
		mmOn = column(newMMAlias, fieldName) + " = " + mmActiveID
	}

	// any number of records can point back
	run.multiMatch = true
	run.next(backColl, newAlias, newMMAlias, on, mmOn)
	return nil
}

func (run *runner) next(c *models.Collection, alias, mmAlias, on, mmOn string) {
	run.pending = append(run.pending, join{table: sqlbuilder.Wrap(c.Name), alias: alias, on: on})
	run.mmJoins = append(run.mmJoins, join{table: sqlbuilder.Wrap(c.Name), alias: mmAlias, on: mmOn})

	run.collection = c
	run.alias = alias
	run.mmAlias = mmAlias
}

func (run *runner) finalize(field models.Field) (*planner.ResolverResult, error) {
	ident := column(run.alias, field.Name)
	mmValue := column(run.mmAlias, field.Name)
	mods := run.mods

	if len(mods) > 0 && mods[0] == planner.ModifierEach {
		if !field.IsMultiple() {
			return nil, fmt.Errorf(":each requires a multiple select or relation field, got %q", field.Name)
		}

		backend := run.r.backend
		jeAlias := shortenAlias(segmentAlias(run.alias, field.Name) + "_je")
		mmJeAlias := multiMatchAlias(jeAlias)
		run.pending = append(run.pending, join{table: backend.JSONEach(ident), alias: jeAlias, on: backend.Bool(true)})
		run.mmJoins = append(run.mmJoins, join{table: backend.JSONEach(mmValue), alias: mmJeAlias, on: backend.Bool(true)})

		ident = column(jeAlias, "value")
		mmValue = column(mmJeAlias, "value")
		run.multiMatch = true
		mods = mods[1:]
	}

	return run.result(field, ident, mmValue, false, mods)
}

func (run *runner) finalizeJSON(field models.Field, path []string) (*planner.ResolverResult, error) {
	for _, p := range path {
		if !plainFieldRe.MatchString(p) {
			return nil, fmt.Errorf("invalid json path segment %q", p)
		}
	}

	backend := run.r.backend
	ident := backend.JSONExtract(column(run.alias, field.Name), path)
	mmValue := backend.JSONExtract(column(run.mmAlias, field.Name), path)

	return run.result(field, ident, mmValue, true, run.mods)
}

func (run *runner) result(field models.Field, ident, mmValue string, noCoalesce bool, mods []string) (*planner.ResolverResult, error) {
	backend := run.r.backend

	for _, mod := range mods {
		switch mod {
		case planner.ModifierLength:
			if !field.IsJSON() {
				return nil, fmt.Errorf(":length is not supported by %s field %q", field.Type, field.Name)
			}
			ident = backend.JSONArrayLength(ident)
			mmValue = backend.JSONArrayLength(mmValue)
			noCoalesce = true
		case planner.ModifierLower:
			ident = "LOWER(" + backend.Text(ident) + ")"
			mmValue = "LOWER(" + backend.Text(mmValue) + ")"
		case planner.ModifierChanged:
			// only request body fields can change
			return &planner.ResolverResult{Identifier: backend.Bool(false), NoCoalesce: true}, nil
		case planner.ModifierIsSet:
			return nil, fmt.Errorf(":isset is supported only by @request fields")
		default:
			return nil, fmt.Errorf("unexpected modifier :%s", mod)
		}
	}

	result := &planner.ResolverResult{Identifier: ident, NoCoalesce: noCoalesce}
	if run.multiMatch {
		result.MultiMatchSubQuery = run.multiMatchSubQuery(mmValue)
	}
	return result, nil
}

func (run *runner) multiMatchSubQuery(value string) string {
	base := run.r.base.Name
	mmBase := multiMatchAlias(base)

	var sb strings.Builder
	sb.WriteString("SELECT " + value + " AS [[multiMatchValue]]")
	sb.WriteString(" FROM " + sqlbuilder.Wrap(base) + " " + sqlbuilder.Wrap(mmBase))
	for _, j := range run.mmJoins {
		sb.WriteString(" " + j.String())
	}
	sb.WriteString(" WHERE " + column(mmBase, models.FieldNameID) + " = " + column(base, models.FieldNameID))
	return sb.String()
}

// inJSONArray checks needle against the elements of a JSON array column.
// Scalars count as single element arrays.
func (run *runner) inJSONArray(needle, array string) string {
	return needle + " IN (SELECT [[__je.value]] FROM " + run.r.backend.JSONEach(array) + " [[__je]])"
}

func column(alias, name string) string {
	return sqlbuilder.Wrap(alias + "." + name)
}

// segmentAlias appends a length prefixed segment so that different paths
// never produce the same alias.
func segmentAlias(parent, segment string) string {
	return parent + "_" + strconv.Itoa(len(segment)) + segment
}

// multiMatchAlias names the copy of alias used inside multi-match subqueries.
func multiMatchAlias(alias string) string {
	return shortenAlias(mmAliasPrefix + alias)
}

func shortenAlias(alias string) string {
	if len(alias) <= maxAliasLength {
		return alias
	}
	sum := sha256.Sum256([]byte(alias))
	return "__rel_" + hex.EncodeToString(sum[:12])
}
