package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
	"errors"       // errors is used to compare sentinel values

	"github.com/iliyamo/pill-dispenser/internal/model"
)

const dispenserSelect = `SELECT d.id, d.owner_id, u.username, d.name, d.serial_id, d.size, d.created_at
                         FROM dispensers d JOIN users u ON u.id = d.owner_id`

// DispenserRepo provides methods to register, load, rename and delete
// dispensers.  Every read and write is scoped by owner so a user can
// never reach another user's devices through this type.
type DispenserRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewDispenserRepo constructs a DispenserRepo with the given DB handle.
func NewDispenserRepo(db *sql.DB) *DispenserRepo {
	return &DispenserRepo{db: db}
}

// SerialExists reports whether any user has registered serialID.
func (r *DispenserRepo) SerialExists(ctx context.Context, serialID string) (bool, error) {
	return exists(ctx, r.db, "SELECT 1 FROM dispensers WHERE serial_id = ? LIMIT 1", serialID)
}

// NameExists reports whether ownerID already has a dispenser called name.
func (r *DispenserRepo) NameExists(ctx context.Context, ownerID uint64, name string) (bool, error) {
	return exists(ctx, r.db, "SELECT 1 FROM dispensers WHERE owner_id = ? AND name = ? LIMIT 1", ownerID, name)
}

// CountByOwner returns how many dispensers ownerID has registered.
func (r *DispenserRepo) CountByOwner(ctx context.Context, ownerID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispensers WHERE owner_id = ?", ownerID).Scan(&n)
	return n, err
}

// Create inserts d together with d.Containers in one transaction.  The
// owner row is locked first so concurrent registrations for the same
// owner serialise on the quota check; ErrQuotaExceeded is returned when
// the owner already has quota dispensers.  On success d and its
// containers carry their generated IDs and d.CreatedAt is set.
func (r *DispenserRepo) Create(ctx context.Context, d *model.Dispenser, quota int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		// lock the owner so the count below cannot go stale
		err := tx.QueryRowContext(ctx, "SELECT username FROM users WHERE id = ? FOR UPDATE", d.OwnerID).Scan(&d.OwnerUsername)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispensers WHERE owner_id = ?", d.OwnerID).Scan(&n); err != nil {
			return err
		}
		if n >= quota {
			return ErrQuotaExceeded
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO dispensers (owner_id, name, serial_id, size) VALUES (?, ?, ?, ?)",
			d.OwnerID, d.Name, d.SerialID, string(d.Size))
		if err != nil {
			return mapDuplicate(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		d.ID = uint64(id)
		if err := tx.QueryRowContext(ctx, "SELECT created_at FROM dispensers WHERE id = ?", d.ID).Scan(&d.CreatedAt); err != nil {
			return err
		}
		for i := range d.Containers {
			d.Containers[i].DispenserID = d.ID
		}
		return insertContainersTx(ctx, tx, d.Containers)
	})
}

// GetByOwnerAndName loads the dispenser named name belonging to ownerID
// with its containers and schedules.  ErrDispenserNotFound is returned
// when the owner has no such dispenser, whether or not another user does.
func (r *DispenserRepo) GetByOwnerAndName(ctx context.Context, ownerID uint64, name string) (*model.Dispenser, error) {
	d, err := scanDispenser(r.db.QueryRowContext(ctx, dispenserSelect+" WHERE d.owner_id = ? AND d.name = ?", ownerID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDispenserNotFound
		}
		return nil, err
	}
	if d.Containers, err = loadContainers(ctx, r.db, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

// ListByOwner returns the owner's dispensers ordered by creation, each with
// its full container and schedule tree.
func (r *DispenserRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]*model.Dispenser, error) {
	rows, err := r.db.QueryContext(ctx, dispenserSelect+" WHERE d.owner_id = ? ORDER BY d.id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Dispenser
	for rows.Next() {
		d, err := scanDispenser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, d := range out {
		if d.Containers, err = loadContainers(ctx, r.db, d.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Rename changes the name of dispenser id if it belongs to ownerID.
// ErrDuplicateName is returned when the owner already uses newName.
func (r *DispenserRepo) Rename(ctx context.Context, id, ownerID uint64, newName string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE dispensers SET name = ? WHERE id = ? AND owner_id = ?", newName, id, ownerID)
	if err != nil {
		return mapDuplicate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDispenserNotFound
	}
	return nil
}

// DeleteByOwnerAndName removes the owner's dispenser called name together
// with its containers and schedules, returning the deleted dispenser's id.
// Children are deleted explicitly so the cascade does not depend on the
// foreign key definitions.
func (r *DispenserRepo) DeleteByOwnerAndName(ctx context.Context, ownerID uint64, name string) (uint64, error) {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM dispensers WHERE owner_id = ? AND name = ? FOR UPDATE", ownerID, name).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDispenserNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE s FROM schedules s JOIN containers c ON c.id = s.container_id WHERE c.dispenser_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM containers WHERE dispenser_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM dispensers WHERE id = ?", id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func scanDispenser(s scanner) (*model.Dispenser, error) {
	var (
		d    model.Dispenser
		size string
	)
	if err := s.Scan(&d.ID, &d.OwnerID, &d.OwnerUsername, &d.Name, &d.SerialID, &size, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Size = model.Size(size)
	return &d, nil
}
