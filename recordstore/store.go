package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/storage"
)

type StoreOptions struct {
	// Now is the clock used for record timestamps and date macros.
	Now func() time.Time
	// MaxExprLimit caps the comparisons of a single filter or rule.
	// Zero selects planner.DefaultMaxExprLimit.
	MaxExprLimit int
	// Tracer overrides the tracer of the global otel provider.
	Tracer trace.Tracer
}

func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Now:          time.Now,
		MaxExprLimit: planner.DefaultMaxExprLimit,
	}
}

// Store keeps collections and their records in a SQL database and
// evaluates filters and access rules against them.
type Store struct {
	adapter storage.Adapter
	db      *storage.DB
	opts    StoreOptions
	tracer  trace.Tracer
	logger  *zap.SugaredLogger

	mu          sync.RWMutex
	collections []*models.Collection
}

// Open connects to the database, creates the collection registry when
// missing and loads the registered collections.
func Open(ctx context.Context, adapter storage.Adapter, opts StoreOptions) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxExprLimit == 0 {
		opts.MaxExprLimit = planner.DefaultMaxExprLimit
	}

	raw, err := adapter.Connect(ctx)
	if err != nil {
		return nil, Wrap(ErrIO, "connect to database", err)
	}
	db := storage.NewDB(raw, adapter.Backend())

	if err := adapter.Bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, Wrap(ErrSQL, "bootstrap collection registry", err)
	}

	s := &Store{
		adapter: adapter,
		db:      db,
		opts:    opts,
		tracer:  opts.Tracer,
		logger:  zap.S().Named("store"),
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("recordstore")
	}

	if err := s.loadCollections(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Infow("store opened", "backend", adapter.Backend(), "store", adapter.StoreID(), "collections", len(s.collections))
	return s, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return Wrap(ErrIO, "close database", err)
	}
	return s.adapter.Close()
}

func (s *Store) DB() *storage.DB {
	return s.db
}

func (s *Store) Backend() storage.Backend {
	return s.db.Backend()
}

func (s *Store) loadCollections(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, storage.SelectCollections, nil)
	if err != nil {
		return Wrap(ErrSQL, "load collections", err)
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Wrap(ErrSQL, "scan collection", err)
		}
		var c models.Collection
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return Wrap(ErrSchema, "decode collection", err)
		}
		collections = append(collections, &c)
	}
	if err := rows.Err(); err != nil {
		return Wrap(ErrSQL, "iterate collections", err)
	}

	s.mu.Lock()
	s.collections = collections
	s.mu.Unlock()
	return nil
}

// CreateCollection validates c, creates its table and registers it.
func (s *Store) CreateCollection(ctx context.Context, c *models.Collection) error {
	if err := c.Validate(); err != nil {
		return Wrap(ErrSchema, "invalid collection", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.collections {
		if existing.Name == c.Name || existing.ID == c.ID {
			return SchemaError(fmt.Sprintf("collection %q already exists", c.Name))
		}
	}

	for _, f := range c.Fields {
		if f.Type != models.FieldRelation {
			continue
		}
		target := f.Options.CollectionID
		if target == c.ID || target == c.Name {
			continue
		}
		if s.findCollection(target) == nil {
			return &Error{Kind: ErrSchema, Message: fmt.Sprintf("unknown relation collection %q", target), Field: f.Name}
		}
	}

	data, err := json.Marshal(c)
	if err != nil {
		return Wrap(ErrSchema, "encode collection", err)
	}

	if err := s.adapter.CreateCollectionTable(ctx, s.db, c); err != nil {
		return Wrap(ErrSQL, "create collection table", err)
	}
	if _, err := s.db.ExecContext(ctx, storage.InsertCollection, map[string]any{
		"id":   c.ID,
		"name": c.Name,
		"data": string(data),
	}); err != nil {
		return Wrap(ErrSQL, "register collection", err)
	}

	s.collections = append(s.collections, c)
	s.logger.Infow("collection created", "collection", c.Name, "fields", len(c.Fields))
	return nil
}

// Collections returns the registered collections ordered by name.
func (s *Store) Collections() []*models.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Collection, len(s.collections))
	copy(out, s.collections)
	slices.SortFunc(out, func(a, b *models.Collection) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Collection returns the collection with the given name or id.
func (s *Store) Collection(nameOrID string) (*models.Collection, error) {
	return s.FindCollection(nameOrID)
}

// FindCollection implements resolvers.CollectionProvider.
func (s *Store) FindCollection(nameOrID string) (*models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c := s.findCollection(nameOrID); c != nil {
		return c, nil
	}
	return nil, NotFoundError(fmt.Sprintf("collection %q", nameOrID))
}

func (s *Store) findCollection(nameOrID string) *models.Collection {
	for _, c := range s.collections {
		if c.ID == nameOrID || c.Name == nameOrID {
			return c
		}
	}
	return nil
}

func (s *Store) now() string {
	return s.opts.Now().UTC().Format(models.DateLayout)
}

func (s *Store) compilerOptions() []planner.Option {
	return []planner.Option{
		planner.WithNow(s.opts.Now),
		planner.WithMaxExprLimit(s.opts.MaxExprLimit),
	}
}
