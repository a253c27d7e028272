// Package tenants implements the tenant router: it maps a tenant identifier
// to an isolated logical partition (its own document schema and object-key
// prefix) and caches one handle per tenant for the process lifetime.
package tenants

import (
	"fmt"
	"strings"

	"github.com/dkravets/assetvault/internal/common"
)

// Partition is a handle to one tenant's isolated storage. It carries the
// Postgres schema holding the tenant's collections and the key prefix under
// which all of the tenant's objects live. No other tenant's data is
// reachable through it.
type Partition struct {
	tenantID string
	schema   string
	prefix   string
}

// NewPartition builds a handle directly; used by tests and by the registry.
func NewPartition(tenantID, schema, prefix string) *Partition {
	return &Partition{tenantID: tenantID, schema: schema, prefix: prefix}
}

func (p *Partition) TenantID() string { return p.tenantID }

// Schema is the Postgres schema name of the partition's collections.
func (p *Partition) Schema() string { return p.schema }

// ObjectPrefix is the key prefix of the partition's objects in the shared
// bucket.
func (p *Partition) ObjectPrefix() string { return p.prefix }

// schemaName derives the partition's schema identifier from a tenant id.
// The result is interpolated into DDL, so only lowercase identifier
// characters survive: '-' maps to '_', anything else is rejected.
func schemaName(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("%w: empty tenant id", common.ErrInvalidInput)
	}
	var b strings.Builder
	b.WriteString("tenant_")
	for _, c := range strings.ToLower(tenantID) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		case c == '-':
			b.WriteRune('_')
		default:
			return "", fmt.Errorf("%w: tenant id contains unsupported character %q", common.ErrInvalidInput, c)
		}
	}
	// Postgres identifier limit.
	if b.Len() > 63 {
		return "", fmt.Errorf("%w: tenant id too long", common.ErrInvalidInput)
	}
	return b.String(), nil
}

func objectPrefix(tenantID string) string {
	return "tenants/" + tenantID + "/"
}
