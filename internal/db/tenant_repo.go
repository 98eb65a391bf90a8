package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"nexora/internal/types"
)

// TenantRepo provides data access for the tenants table. The billing service
// only reads tenants; account provisioning lives in the main ERP backend.
type TenantRepo struct {
	db DBTX
}

// NewTenantRepo creates a new TenantRepo backed by the given database
// connection (pool or transaction).
func NewTenantRepo(db DBTX) *TenantRepo {
	return &TenantRepo{db: db}
}

// GetByID retrieves a tenant by its ID.
// Returns ErrCodeNotFoundTenant if no tenant exists.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	var tenant types.Tenant
	err := r.db.QueryRow(ctx,
		`SELECT t.id, t.name, t.owner_email, t.created_at, t.updated_at
		 FROM tenants t
		 WHERE t.id = $1`,
		id,
	).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.OwnerEmail,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve tenant", err)
	}
	return &tenant, nil
}
