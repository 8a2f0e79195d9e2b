package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/pill-dispenser/internal/model"
)

var (
	dispenserNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
	serialPattern        = regexp.MustCompile(`^[SML]-\d{8}-\d{4}$`)
)

// DispenserLookup exposes the read-only store queries the dispenser rules need.
type DispenserLookup interface {
	SerialExists(ctx context.Context, serialID string) (bool, error)
	NameExists(ctx context.Context, ownerID uint64, name string) (bool, error)
	CountByOwner(ctx context.Context, ownerID uint64) (int, error)
}

// DispenserName trims raw and checks length and charset.  The trimmed
// name is returned so callers persist exactly what was validated.
func DispenserName(raw string) (string, Violations) {
	var v Violations
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < 3 {
		v.add(MsgNameTooShort)
	}
	if !dispenserNamePattern.MatchString(name) {
		v.add(MsgNameCharset)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		v.add(MsgNameTooLong)
	}
	return name, v
}

// SerialID checks the SIZE-YYYYMMDD-XXXX format.
func SerialID(raw string) (string, Violations) {
	var v Violations
	serial := strings.TrimSpace(raw)
	if !serialPattern.MatchString(serial) {
		v.add(MsgSerialFormat)
	}
	return serial, v
}

// NewDispenser is the validated form of a registration request.
type NewDispenser struct {
	Name     string
	SerialID string
	Size     model.Size
}

// DispenserRegistration runs the format rules, then the state rules
// (serial uniqueness, owner-scoped name uniqueness, per-owner quota).
// State rules are skipped for fields that already failed format checks.
func DispenserRegistration(ctx context.Context, lookup DispenserLookup, ownerID uint64, name, serialID string) (NewDispenser, Violations, error) {
	var v Violations
	serial, sv := SerialID(serialID)
	v = append(v, sv...)
	if sv.OK() {
		taken, err := lookup.SerialExists(ctx, serial)
		if err != nil {
			return NewDispenser{}, nil, err
		}
		if taken {
			v.add(MsgSerialTaken)
		}
	}
	trimmed, nv := DispenserName(name)
	v = append(v, nv...)
	if nv.OK() {
		taken, err := lookup.NameExists(ctx, ownerID, trimmed)
		if err != nil {
			return NewDispenser{}, nil, err
		}
		if taken {
			v.add(MsgNameTaken)
		}
	}
	count, err := lookup.CountByOwner(ctx, ownerID)
	if err != nil {
		return NewDispenser{}, nil, err
	}
	if count >= model.MaxDispensersPerOwner {
		v.add(MsgQuotaExceeded)
	}
	size, _ := model.SizeFromSerial(serial)
	return NewDispenser{Name: trimmed, SerialID: serial, Size: size}, v, nil
}

// DispenserRename validates a new name for an owner's dispenser.  Like the
// registration path it rejects any name the owner already uses, including
// the dispenser's current one.
func DispenserRename(ctx context.Context, lookup DispenserLookup, ownerID uint64, newName string) (string, Violations, error) {
	trimmed, v := DispenserName(newName)
	if !v.OK() {
		return trimmed, v, nil
	}
	taken, err := lookup.NameExists(ctx, ownerID, trimmed)
	if err != nil {
		return "", nil, err
	}
	if taken {
		v.add(MsgNameTaken)
	}
	return trimmed, v, nil
}

// PillName trims raw and requires a non-empty value.
func PillName(raw string) (string, Violations) {
	var v Violations
	name := strings.TrimSpace(raw)
	if name == "" {
		v.add(MsgPillEmpty)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		v.add(MsgPillTooLong)
	}
	return name, v
}

// SlotNumber requires a positive slot.
func SlotNumber(slot int) Violations {
	var v Violations
	if slot < 1 {
		v.add(MsgSlotPositive)
	}
	return v
}

// ContainerAddition checks that c may be added to d given the containers
// d already has: positive and unused slot, non-empty pill name, and room
// left under the size-derived maximum.
func ContainerAddition(d *model.Dispenser, c model.Container) Violations {
	v := SlotNumber(c.SlotNumber)
	for _, existing := range d.Containers {
		if existing.SlotNumber == c.SlotNumber {
			v.add(MsgSlotTaken)
			break
		}
	}
	_, pv := PillName(c.PillName)
	v = append(v, pv...)
	if limit := d.MaxContainers(); len(d.Containers) >= limit {
		v.add(fmt.Sprintf("A dispenser cannot have more than %d containers", limit))
	}
	return v
}

// ContainerSet validates a whole initial container set for d by adding
// the containers one at a time.  d is not modified.
func ContainerSet(d *model.Dispenser, containers []model.Container) Violations {
	probe := *d
	probe.Containers = make([]model.Container, 0, len(containers))
	for _, c := range containers {
		if v := ContainerAddition(&probe, c); !v.OK() {
			return v
		}
		probe.Containers = append(probe.Containers, c)
	}
	return nil
}
