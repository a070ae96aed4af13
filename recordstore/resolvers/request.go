package resolvers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// staticRequestData flattens the request into the map @request.* paths
// are looked up in.
func staticRequestData(info *models.RequestInfo) map[string]any {
	data := map[string]any{
		"context": models.RequestContextDefault,
		"method":  "",
		"headers": map[string]any{},
		"query":   map[string]any{},
		"body":    map[string]any{},
		"auth":    nil,
	}
	if info == nil {
		return data
	}

	if info.Context != "" {
		data["context"] = info.Context
	}
	data["method"] = strings.ToUpper(info.Method)

	headers := make(map[string]any, len(info.Headers))
	for k, v := range info.Headers {
		headers[strings.ReplaceAll(strings.ToLower(k), "-", "_")] = v
	}
	data["headers"] = headers

	query := make(map[string]any, len(info.Query))
	for k, v := range info.Query {
		query[k] = v
	}
	data["query"] = query

	if info.Body != nil {
		data["body"] = info.Body
	}

	if info.Auth != nil {
		auth := make(map[string]any, len(info.Auth.Data)+2)
		for k, v := range info.Auth.Data {
			auth[k] = v
		}
		auth["collectionId"] = info.Auth.Collection.ID
		auth["collectionName"] = info.Auth.Collection.Name
		data["auth"] = auth
	}

	return data
}

func lookup(data map[string]any, path []string) (any, bool) {
	var current any = data
	for _, p := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (r *RecordFieldResolver) resolveRequest(parts []string, mods []string) (*planner.ResolverResult, error) {
	if len(parts) == 0 || parts[0] == "" {
		return nil, errors.New("empty @request path")
	}

	if parts[0] == "auth" {
		if r.needsAuthJoin(parts[1:]) {
			return r.resolveAuthRelation(parts[1:], mods)
		}
		// the auth record stores single relations as the related id
		if len(parts) == 3 && parts[2] == models.FieldNameID && r.isSingleAuthRelation(parts[1]) {
			parts = parts[:2]
		}
		if len(parts) > 1 && r.isHiddenAuthField(parts[1]) {
			parts = nil
		}
	}

	if len(mods) > 0 && mods[0] == planner.ModifierChanged {
		return r.resolveChanged(parts)
	}

	var (
		value  any
		exists bool
	)
	if parts != nil {
		value, exists = lookup(r.static, parts)
	}

	for _, mod := range mods {
		switch mod {
		case planner.ModifierIsSet:
			return &planner.ResolverResult{Identifier: r.backend.Bool(exists), NoCoalesce: true}, nil
		case planner.ModifierLength:
			value = valueLength(value)
		case planner.ModifierLower:
			if s, ok := value.(string); ok {
				value = strings.ToLower(s)
			}
		default:
			return nil, fmt.Errorf("modifier :%s is not supported by @request fields", mod)
		}
	}

	return r.bind(value)
}

func valueLength(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		if val == "" {
			return 0
		}
		return 1
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len()
	}
	return 1
}

func (r *RecordFieldResolver) isHiddenAuthField(name string) bool {
	if r.info == nil || r.info.Auth == nil {
		return false
	}
	f, ok := r.info.Auth.Collection.FieldByName(name)
	return ok && r.isHidden(f)
}

func (r *RecordFieldResolver) isSingleAuthRelation(name string) bool {
	if r.info == nil || r.info.Auth == nil || r.info.Auth.Collection == nil {
		return false
	}
	f, ok := r.info.Auth.Collection.FieldByName(name)
	return ok && f.Type == models.FieldRelation && !f.IsMultiple()
}

// needsAuthJoin reports whether an @request.auth path reaches past the
// values stored on the auth record itself.
func (r *RecordFieldResolver) needsAuthJoin(path []string) bool {
	if r.info == nil || r.info.Auth == nil || len(path) < 2 {
		return false
	}
	if strings.Contains(path[0], "_via_") {
		return true
	}

	f, ok := r.info.Auth.Collection.FieldByName(path[0])
	if !ok || f.Type != models.FieldRelation {
		return false
	}
	return f.IsMultiple() || len(path) > 2 || path[1] != models.FieldNameID
}

// resolveAuthRelation joins the auth record by id and resolves the rest of
// the path from there.
func (r *RecordFieldResolver) resolveAuthRelation(path []string, mods []string) (*planner.ResolverResult, error) {
	auth := r.info.Auth

	if r.authParam == "" {
		r.authParam = r.builder.Arg(auth.ID())
	}

	alias := shortenAlias(segmentAlias("__auth", auth.Collection.Name))
	table := sqlbuilder.Wrap(auth.Collection.Name)

	run := &runner{
		r:          r,
		parts:      path,
		mods:       mods,
		collection: auth.Collection,
		alias:      alias,
		mmAlias:    multiMatchAlias(alias),
	}
	run.pending = append(run.pending, join{
		table: table,
		alias: alias,
		on:    column(alias, models.FieldNameID) + " = " + r.authParam,
	})
	run.mmJoins = append(run.mmJoins, join{
		table: table,
		alias: run.mmAlias,
		on:    column(run.mmAlias, models.FieldNameID) + " = " + r.authParam,
	})

	res, err := run.run()
	if err != nil {
		return nil, err
	}
	for _, j := range run.pending {
		r.registerJoin(j.table, j.alias, j.on)
	}
	return res, nil
}

// resolveChanged compiles "@request.body.f:changed" into "the body sets f
// to a value other than the stored one".
func (r *RecordFieldResolver) resolveChanged(parts []string) (*planner.ResolverResult, error) {
	if len(parts) != 2 || parts[0] != "body" || !plainFieldRe.MatchString(parts[1]) {
		return nil, fmt.Errorf(":changed is supported only by @request.body.<field>")
	}

	name := parts[1]
	sub := fmt.Sprintf("@request.body.%[1]s:isset = true && @request.body.%[1]s != %[1]s", name)

	expr, err := planner.NewCompiler(r.backend, r, r.builder).BuildFilter(sub)
	if err != nil {
		return nil, err
	}

	placeholder := "{{" + r.builder.Unique("__changed") + "}}"
	return &planner.ResolverResult{
		Identifier: placeholder,
		NoCoalesce: true,
		AfterBuild: func(e string) string {
			return strings.ReplaceAll(e, placeholder, "("+expr+")")
		},
	}, nil
}
