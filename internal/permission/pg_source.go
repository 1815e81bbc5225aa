package permission

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/staffdeck/staffdeck/model"
)

// PgGrantSource resolves grant tables from a Postgres table shared with the
// identity service. Schema:
//
//	CREATE TABLE screen_grants (
//	    role            TEXT NOT NULL,
//	    screen_id       TEXT NOT NULL,
//	    permission_type TEXT NOT NULL,
//	    PRIMARY KEY (role, screen_id, permission_type)
//	);
type PgGrantSource struct {
	pool *pgxpool.Pool
}

// NewPgGrantSource creates a Postgres-backed grant source.
func NewPgGrantSource(pool *pgxpool.Pool) *PgGrantSource {
	return &PgGrantSource{pool: pool}
}

// FetchGrants returns the union of grants for all roles in the request
// context on the given screen.
func (s *PgGrantSource) FetchGrants(ctx context.Context, rctx *model.RequestContext, screenID string) (model.GrantTable, error) {
	table := make(model.GrantTable)
	if len(rctx.Roles) == 0 {
		return table, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT permission_type FROM screen_grants WHERE role = ANY($1) AND screen_id = $2`,
		rctx.Roles, screenID,
	)
	if err != nil {
		return nil, fmt.Errorf("permission: query grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var permissionType string
		if err := rows.Scan(&permissionType); err != nil {
			return nil, fmt.Errorf("permission: scan grant: %w", err)
		}
		table[permissionType] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permission: read grants: %w", err)
	}
	return table, nil
}

// HealthCheck reports whether the grants database is reachable.
func (s *PgGrantSource) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
