package model

import (
    "fmt"
    "time"
)

// MaxDispensersPerOwner caps how many dispensers a single user may register.
const MaxDispensersPerOwner = 5

// Size is the hardware size class encoded as the first character of a
// dispenser serial id.
type Size string

const (
    SizeSmall  Size = "S"
    SizeMedium Size = "M"
    SizeLarge  Size = "L"
)

var sizeSlots = map[Size]int{
    SizeSmall:  4,
    SizeMedium: 6,
    SizeLarge:  10,
}

var sizeLabels = map[Size]string{
    SizeSmall:  "small",
    SizeMedium: "medium",
    SizeLarge:  "large",
}

// Valid reports whether s is one of the known size classes.
func (s Size) Valid() bool {
    _, ok := sizeSlots[s]
    return ok
}

// MaxContainers returns the number of physical slots for the size class,
// or 0 for an unknown size.
func (s Size) MaxContainers() int { return sizeSlots[s] }

// Label returns the lower-case human name of the size class.
func (s Size) Label() string { return sizeLabels[s] }

// SizeFromSerial derives the size class from a serial id such as
// S-20250524-0001.  The second result is false when the prefix is unknown.
func SizeFromSerial(serial string) (Size, bool) {
    if serial == "" {
        return "", false
    }
    s := Size(serial[:1])
    return s, s.Valid()
}

// EmptySlotName is the placeholder pill name given to freshly created containers.
func EmptySlotName(slot int) string {
    return fmt.Sprintf("Empty Slot %d", slot)
}

// Dispenser is a physical pill dispensing device owned by one user.
// Containers are only populated by loaders that fetch the full tree.
//
// Fields:
//  ID            – primary key identifier.
//  OwnerID       – user ID of the owner.
//  OwnerUsername – username of the owner (joined, read only).
//  Name          – owner-unique display name.
//  SerialID      – globally unique hardware serial (SIZE-YYYYMMDD-XXXX).
//  Size          – size class derived from the serial.
//  CreatedAt     – registration timestamp.
type Dispenser struct {
    ID            uint64      // dispensers.id
    OwnerID       uint64      // dispensers.owner_id
    OwnerUsername string      // users.username
    Name          string      // dispensers.name
    SerialID      string      // dispensers.serial_id
    Size          Size        // dispensers.size
    CreatedAt     time.Time   // dispensers.created_at
    Containers    []Container // containers ordered by slot_number
}

// MaxContainers returns the size-derived slot ceiling for the dispenser.
func (d *Dispenser) MaxContainers() int { return d.Size.MaxContainers() }

// InitialContainers builds one placeholder container per slot, 1..max.
func (d *Dispenser) InitialContainers() []Container {
    n := d.MaxContainers()
    out := make([]Container, 0, n)
    for slot := 1; slot <= n; slot++ {
        out = append(out, Container{
            DispenserID: d.ID,
            SlotNumber:  slot,
            PillName:    EmptySlotName(slot),
        })
    }
    return out
}
