package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dkravets/assetvault/internal/common"
	"github.com/dkravets/assetvault/internal/logging"
	"github.com/dkravets/assetvault/internal/server/blob"
	"github.com/dkravets/assetvault/internal/server/repositories/repomanager"
)

// Registry hands out partition handles, one per tenant, cached for the
// process lifetime. Safe for concurrent use: repeated calls for the same
// tenant return the cached handle, and the first call performs the one-time
// structural setup.
type Registry struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	blobs  blob.Store
	logger logging.Logger

	mu         sync.RWMutex
	partitions map[string]*Partition
}

func NewRegistry(db *sql.DB, rm repomanager.RepositoryManager, blobs blob.Store, logger logging.Logger) *Registry {
	return &Registry{
		db:         db,
		rm:         rm,
		blobs:      blobs,
		logger:     logger.With("module", "tenant_registry"),
		partitions: make(map[string]*Partition),
	}
}

// Partition returns the handle for tenantID, bootstrapping the partition on
// first access: registry row, schema and tables synchronously, secondary
// indexes in the background (an index failure is logged, never fatal to the
// request that triggered it).
func (r *Registry) Partition(ctx context.Context, tenantID string) (*Partition, error) {
	r.mu.RLock()
	p, ok := r.partitions[tenantID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double check: another request may have bootstrapped while we waited.
	if p, ok := r.partitions[tenantID]; ok {
		return p, nil
	}

	schema, err := schemaName(tenantID)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, schema_name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING;`,
		tenantID, schema)
	if err != nil {
		return nil, fmt.Errorf("tenant registry insert: %w", err)
	}

	if err := r.rm.CreatePartitionSchema(ctx, r.db, schema); err != nil {
		return nil, fmt.Errorf("partition bootstrap: %w", err)
	}

	go func() {
		// Detached from the request context on purpose: index builds must
		// not die with the request that triggered the bootstrap.
		bctx := context.Background()
		if err := r.rm.CreatePartitionIndexes(bctx, r.db, schema); err != nil {
			r.logger.Error(bctx, "partition index build failed", "tenant", tenantID, "error", err.Error())
		}
	}()

	p = NewPartition(tenantID, schema, objectPrefix(tenantID))
	r.partitions[tenantID] = p
	return p, nil
}

// Drop irreversibly removes the tenant's partition: all objects under its
// prefix, then the schema (single transactional CASCADE statement, so no
// reader observes a half-dropped document partition), then the registry row.
// Used only on tenant offboarding.
func (r *Registry) Drop(ctx context.Context, tenantID string) error {
	var schema string
	err := r.db.QueryRowContext(ctx, `SELECT schema_name FROM tenants WHERE id=$1`, tenantID).Scan(&schema)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("tenant lookup: %w", err)
	}

	// Objects first: a crash mid-drop can only leave unreferenced objects,
	// never metadata pointing at a wiped bucket.
	if err := r.blobs.DeletePrefix(ctx, objectPrefix(tenantID)); err != nil {
		return fmt.Errorf("%w: wiping tenant objects: %v", common.ErrStorageFailure, err)
	}

	if err := r.rm.DropPartitionSchema(ctx, r.db, schema); err != nil {
		return fmt.Errorf("%w: dropping tenant schema: %v", common.ErrStorageFailure, err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id=$1`, tenantID); err != nil {
		return fmt.Errorf("tenant registry delete: %w", err)
	}

	r.mu.Lock()
	delete(r.partitions, tenantID)
	r.mu.Unlock()

	r.logger.Info(ctx, "tenant partition dropped", "tenant", tenantID)
	return nil
}

// TenantIDs lists every registered tenant; the expiry sweep walks this to
// reach sessions in partitions not yet cached since the last restart.
func (r *Registry) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("tenant list: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close drops all cached handles. Called on process shutdown; the database
// pool itself is owned and closed by the app.
func (r *Registry) Close() {
	r.mu.Lock()
	r.partitions = make(map[string]*Partition)
	r.mu.Unlock()
}
