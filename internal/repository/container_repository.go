package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/pill-dispenser/internal/model"
)

// ContainerRepo manages the slots of a dispenser and their schedules.
// Ownership is checked by the caller, which resolves the parent
// dispenser through DispenserRepo first.
type ContainerRepo struct {
	db *sql.DB
}

func NewContainerRepo(db *sql.DB) *ContainerRepo {
	return &ContainerRepo{db: db}
}

// GetBySlot loads the container at slot in dispenserID with its schedules.
func (r *ContainerRepo) GetBySlot(ctx context.Context, dispenserID uint64, slot int) (*model.Container, error) {
	var c model.Container
	err := r.db.QueryRowContext(ctx,
		"SELECT id, dispenser_id, slot_number, pill_name FROM containers WHERE dispenser_id = ? AND slot_number = ?",
		dispenserID, slot).Scan(&c.ID, &c.DispenserID, &c.SlotNumber, &c.PillName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContainerNotFound
		}
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, container_id, weekday, time_of_day FROM schedules WHERE container_id = ? ORDER BY weekday, time_of_day",
		c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		c.Schedules = append(c.Schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdatePillName sets the pill name of containerID.
func (r *ContainerRepo) UpdatePillName(ctx context.Context, containerID uint64, pillName string) error {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// MySQL reports zero affected rows for an unchanged value, so
		// existence is checked with a locking read instead.
		if err := tx.QueryRowContext(ctx, "SELECT id FROM containers WHERE id = ? FOR UPDATE", containerID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrContainerNotFound
			}
			return err
		}
		_, err := tx.ExecContext(ctx, "UPDATE containers SET pill_name = ? WHERE id = ?", pillName, containerID)
		return err
	})
	return err
}

// ReplaceSchedules atomically swaps the schedule set of containerID for
// entries and, when pillName is non-nil, updates the pill name in the same
// transaction.  Concurrent replacements of one container are serialised by
// the row lock on the container.
func (r *ContainerRepo) ReplaceSchedules(ctx context.Context, containerID uint64, pillName *string, entries []model.ScheduleEntry) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var id uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM containers WHERE id = ? FOR UPDATE", containerID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrContainerNotFound
			}
			return err
		}
		if pillName != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE containers SET pill_name = ? WHERE id = ?", *pillName, containerID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE container_id = ?", containerID); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		var (
			sb   strings.Builder
			args = make([]any, 0, len(entries)*3)
		)
		sb.WriteString("INSERT INTO schedules (container_id, weekday, time_of_day) VALUES ")
		for i, e := range entries {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?)")
			args = append(args, containerID, int(e.Weekday), e.Time.String())
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return mapDuplicate(err)
		}
		return nil
	})
}

// insertContainersTx bulk inserts cs inside tx and fills in their IDs.
// All containers must share one DispenserID.
func insertContainersTx(ctx context.Context, tx *sql.Tx, cs []model.Container) error {
	if len(cs) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(cs)*3)
	)
	sb.WriteString("INSERT INTO containers (dispenser_id, slot_number, pill_name) VALUES ")
	for i, c := range cs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?)")
		args = append(args, c.DispenserID, c.SlotNumber, c.PillName)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return mapDuplicate(err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, slot_number FROM containers WHERE dispenser_id = ?", cs[0].DispenserID)
	if err != nil {
		return err
	}
	defer rows.Close()
	ids := make(map[int]uint64, len(cs))
	for rows.Next() {
		var (
			id   uint64
			slot int
		)
		if err := rows.Scan(&id, &slot); err != nil {
			return err
		}
		ids[slot] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range cs {
		id, ok := ids[cs[i].SlotNumber]
		if !ok {
			return fmt.Errorf("container slot %d missing after insert", cs[i].SlotNumber)
		}
		cs[i].ID = id
	}
	return nil
}

// loadContainers returns the containers of dispenserID ordered by slot,
// each with its schedules ordered by weekday then time.
func loadContainers(ctx context.Context, q queryer, dispenserID uint64) ([]model.Container, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, dispenser_id, slot_number, pill_name FROM containers WHERE dispenser_id = ? ORDER BY slot_number",
		dispenserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Container
	index := make(map[uint64]int)
	for rows.Next() {
		var c model.Container
		if err := rows.Scan(&c.ID, &c.DispenserID, &c.SlotNumber, &c.PillName); err != nil {
			return nil, err
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	srows, err := q.QueryContext(ctx,
		`SELECT s.id, s.container_id, s.weekday, s.time_of_day
		 FROM schedules s JOIN containers c ON c.id = s.container_id
		 WHERE c.dispenser_id = ?
		 ORDER BY s.container_id, s.weekday, s.time_of_day`,
		dispenserID)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		s, err := scanSchedule(srows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[s.ContainerID]; ok {
			out[i].Schedules = append(out[i].Schedules, s)
		}
	}
	return out, srows.Err()
}

// scanSchedule reads a schedules row.  TIME columns arrive as text.
func scanSchedule(s scanner) (model.Schedule, error) {
	var (
		sc      model.Schedule
		weekday int
		raw     string
	)
	if err := s.Scan(&sc.ID, &sc.ContainerID, &weekday, &raw); err != nil {
		return sc, err
	}
	t, err := model.ParseTimeOfDay(raw)
	if err != nil {
		return sc, fmt.Errorf("schedule %d: %w", sc.ID, err)
	}
	sc.Weekday = model.Weekday(weekday)
	sc.Time = t
	return sc, nil
}
