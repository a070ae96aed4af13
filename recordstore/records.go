package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/ops"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/resolvers"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// ListResult is one page of records.
type ListResult struct {
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
	Items      []*models.Record
}

// InsertRecord normalizes data against the collection fields and stores it
// as a new record. A missing id is generated.
func (s *Store) InsertRecord(ctx context.Context, collection string, data map[string]any) (*models.Record, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return nil, err
	}

	id, _ := data[models.FieldNameID].(string)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()

	values := map[string]any{
		models.FieldNameID:      id,
		models.FieldNameCreated: now,
		models.FieldNameUpdated: now,
	}
	for k, v := range data {
		if k == models.FieldNameID {
			continue
		}
		normalized, err := normalizeField(c, k, v)
		if err != nil {
			return nil, err
		}
		values[k] = normalized
	}

	b := sqlbuilder.New()
	insert := sq.Insert(sqlbuilder.Wrap(c.TableName()))
	var (
		columns []string
		args    []any
	)
	for _, f := range c.AllFields() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, sqlbuilder.Wrap(f.Name))
		args = append(args, sq.Expr(b.Arg(v)))
	}

	query, _, err := insert.Columns(columns...).Values(args...).ToSql()
	if err != nil {
		return nil, Wrap(ErrSQL, "build insert", err)
	}
	if _, err := s.db.ExecContext(ctx, query, b.Params()); err != nil {
		return nil, Wrap(ErrSQL, "insert record", err)
	}

	return s.GetRecord(ctx, c.Name, id)
}

// GetRecord loads a record without checking any rule.
func (s *Store) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return nil, err
	}

	b := sqlbuilder.New()
	query, _, err := sq.Select(sqlbuilder.Wrap(c.TableName()) + ".*").
		From(sqlbuilder.Wrap(c.TableName())).
		Where(sq.Expr(idColumn(c) + " = " + b.Arg(id))).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, Wrap(ErrSQL, "build select", err)
	}

	rows, err := s.db.QueryContext(ctx, query, b.Params())
	if err != nil {
		return nil, Wrap(ErrSQL, "select record", err)
	}
	items, err := storage.ScanMaps(rows)
	if err != nil {
		return nil, Wrap(ErrSQL, "scan record", err)
	}
	if len(items) == 0 {
		return nil, NotFoundError(fmt.Sprintf("record %q", id))
	}
	return decodeRecord(c, items[0]), nil
}

// UpdateRecord applies patch to a record. Unless info has superuser access
// the collection UpdateRule must hold for the stored record, with the patch
// exposed as @request.body.
func (s *Store) UpdateRecord(ctx context.Context, collection, id string, patch map[string]any, info *models.RequestInfo) (*models.Record, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetRecord(ctx, c.Name, id); err != nil {
		return nil, err
	}

	if !info.HasSuperuserAccess() {
		if c.UpdateRule == nil {
			return nil, ForbiddenError("only superusers can update " + c.Name + " records")
		}
		ruleInfo := models.RequestInfo{}
		if info != nil {
			ruleInfo = *info
		}
		ruleInfo.Body = patch

		ok, err := s.CanAccessRecord(ctx, c, id, *c.UpdateRule, &ruleInfo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ForbiddenError("the update rule rejected the request")
		}
	}

	b := sqlbuilder.New()
	update := sq.Update(sqlbuilder.Wrap(c.TableName()))
	for k, v := range patch {
		switch k {
		case models.FieldNameID, models.FieldNameCreated, models.FieldNameUpdated:
			return nil, ValidationError(k, errors.New("system fields cannot be changed"))
		}
		normalized, err := normalizeField(c, k, v)
		if err != nil {
			return nil, err
		}
		update = update.Set(sqlbuilder.Wrap(k), sq.Expr(b.Arg(normalized)))
	}
	update = update.
		Set(sqlbuilder.Wrap(models.FieldNameUpdated), sq.Expr(b.Arg(s.now()))).
		Where(sq.Expr(sqlbuilder.Wrap(models.FieldNameID) + " = " + b.Arg(id)))

	query, _, err := update.ToSql()
	if err != nil {
		return nil, Wrap(ErrSQL, "build update", err)
	}
	if _, err := s.db.ExecContext(ctx, query, b.Params()); err != nil {
		return nil, Wrap(ErrSQL, "update record", err)
	}

	return s.GetRecord(ctx, c.Name, id)
}

// DeleteWhere deletes every record matching filter and returns how many
// were removed. Hidden fields can be referenced.
func (s *Store) DeleteWhere(ctx context.Context, collection, filter string) (int, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return 0, err
	}

	b := sqlbuilder.New()
	resolver := resolvers.NewRecordFieldResolver(s, c, nil, b, s.Backend(), resolvers.WithAllowHiddenFields(true))
	expr, err := planner.NewCompiler(s.Backend(), resolver, b, s.compilerOptions()...).BuildFilter(filter)
	if err != nil {
		return 0, searchError(&ops.ParamError{Param: "filter", Err: err})
	}

	matching, _, err := resolver.UpdateQuery(
		sq.Select(idColumn(c)).Distinct().From(sqlbuilder.Wrap(c.TableName())),
	).Where(sq.Expr(expr)).ToSql()
	if err != nil {
		return 0, Wrap(ErrSQL, "build delete", err)
	}

	query, _, err := sq.Delete(sqlbuilder.Wrap(c.TableName())).
		Where(sq.Expr(sqlbuilder.Wrap(models.FieldNameID) + " IN (" + matching + ")")).
		ToSql()
	if err != nil {
		return 0, Wrap(ErrSQL, "build delete", err)
	}

	res, err := s.db.ExecContext(ctx, query, b.Params())
	if err != nil {
		return 0, Wrap(ErrSQL, "delete records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, Wrap(ErrSQL, "rows affected", err)
	}

	s.logger.Debugw("deleted records", "collection", c.Name, "count", n)
	return int(n), nil
}

// ListRecords searches the records of a collection. Unless info has
// superuser access the collection ListRule is applied as a base predicate
// and the filter cannot reference hidden fields.
func (s *Store) ListRecords(ctx context.Context, collection string, params ops.SearchParams, info *models.RequestInfo) (*ListResult, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "recordstore.ListRecords")
	defer span.End()
	span.SetAttributes(attribute.String("recordstore.collection", c.Name))

	superuser := info.HasSuperuserAccess()
	b := sqlbuilder.New()
	resolver := resolvers.NewRecordFieldResolver(s, c, info, b, s.Backend(), resolvers.WithAllowHiddenFields(true))

	var base string
	if !superuser {
		if c.ListRule == nil {
			return nil, ForbiddenError("only superusers can list " + c.Name + " records")
		}
		if *c.ListRule != "" {
			base, err = planner.NewCompiler(s.Backend(), resolver, b, s.compilerOptions()...).BuildFilter(*c.ListRule)
			if err != nil {
				return nil, Wrap(ErrSchema, "invalid list rule of "+c.Name, err)
			}
		}
		resolver.SetAllowHiddenFields(false)
	}

	provider := ops.NewProvider(s.Backend(), resolver, b, ops.WithCompilerOptions(s.compilerOptions()...))
	result, err := provider.Search(ctx, s.db, c.TableName(), base, params)
	if err != nil {
		return nil, searchError(err)
	}

	out := &ListResult{
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
		Items:      make([]*models.Record, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		out.Items = append(out.Items, decodeRecord(c, item))
	}
	return out, nil
}

// ViewRecord loads a single record. Unless info has superuser access the
// collection ViewRule must hold; a record the rule hides is reported as
// not found.
func (s *Store) ViewRecord(ctx context.Context, collection, id string, info *models.RequestInfo) (*models.Record, error) {
	c, err := s.FindCollection(collection)
	if err != nil {
		return nil, err
	}

	record, err := s.GetRecord(ctx, c.Name, id)
	if err != nil {
		return nil, err
	}
	if info.HasSuperuserAccess() {
		return record, nil
	}

	if c.ViewRule == nil {
		return nil, ForbiddenError("only superusers can view " + c.Name + " records")
	}
	if *c.ViewRule == "" {
		return record, nil
	}

	ok, err := s.CanAccessRecord(ctx, c, id, *c.ViewRule, info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NotFoundError(fmt.Sprintf("record %q", id))
	}
	return record, nil
}

// CanAccessRecord reports whether rule holds for the stored record with
// the given id. An empty rule always holds.
func (s *Store) CanAccessRecord(ctx context.Context, c *models.Collection, id, rule string, info *models.RequestInfo) (bool, error) {
	if rule == "" {
		return true, nil
	}

	ctx, span := s.tracer.Start(ctx, "recordstore.CanAccessRecord")
	defer span.End()
	span.SetAttributes(attribute.String("recordstore.collection", c.Name))

	b := sqlbuilder.New()
	resolver := resolvers.NewRecordFieldResolver(s, c, info, b, s.Backend(), resolvers.WithAllowHiddenFields(true))
	expr, err := planner.NewCompiler(s.Backend(), resolver, b, s.compilerOptions()...).BuildFilter(rule)
	if err != nil {
		return false, Wrap(ErrSchema, "invalid rule of "+c.Name, err)
	}

	query, _, err := resolver.UpdateQuery(sq.Select("1").From(sqlbuilder.Wrap(c.TableName()))).
		Where(sq.Expr(idColumn(c) + " = " + b.Arg(id))).
		Where(sq.Expr("(" + expr + ")")).
		Limit(1).
		ToSql()
	if err != nil {
		return false, Wrap(ErrSQL, "build rule check", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, b.Params(), &one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, Wrap(ErrSQL, "check rule", err)
	}
	return true, nil
}

func idColumn(c *models.Collection) string {
	return sqlbuilder.Wrap(c.TableName() + "." + models.FieldNameID)
}

func normalizeField(c *models.Collection, name string, v any) (any, error) {
	f, ok := c.FieldByName(name)
	if !ok {
		return nil, ValidationError(name, errors.New("unknown field"))
	}
	normalized, err := f.Normalize(v)
	if err != nil {
		return nil, ValidationError(name, err)
	}
	return normalized, nil
}

func decodeRecord(c *models.Collection, row map[string]any) *models.Record {
	record := models.NewRecord(c)
	for k, v := range row {
		if f, ok := c.FieldByName(k); ok {
			v = f.Decode(v)
		}
		record.Set(k, v)
	}
	return record
}
