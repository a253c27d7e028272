package models

import "time"

// Tenant is one row of the global tenant registry. Schema is the Postgres
// schema holding the tenant's collections; all of the tenant's objects live
// under its key prefix in the shared bucket.
type Tenant struct {
	ID        string
	Schema    string
	CreatedAt time.Time
}
