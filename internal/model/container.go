package model

// Container is a single physical slot inside a dispenser holding one pill type.
//
// Fields:
//  ID          – primary key identifier.
//  DispenserID – parent dispenser.
//  SlotNumber  – 1-based slot position, unique per dispenser.
//  PillName    – name of the pill loaded in the slot.
//  Schedules   – dosing schedule ordered by weekday then time.
type Container struct {
    ID          uint64     // containers.id
    DispenserID uint64     // containers.dispenser_id
    SlotNumber  int        // containers.slot_number
    PillName    string     // containers.pill_name
    Schedules   []Schedule // schedules ordered by weekday, time
}
