package model

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestSizeFromSerial(t *testing.T) {
    cases := []struct {
        serial string
        size   Size
        max    int
        ok     bool
    }{
        {"S-20250524-0001", SizeSmall, 4, true},
        {"M-20250524-0001", SizeMedium, 6, true},
        {"L-20250524-0001", SizeLarge, 10, true},
        {"X-20250524-0001", Size("X"), 0, false},
        {"", "", 0, false},
    }
    for _, tc := range cases {
        size, ok := SizeFromSerial(tc.serial)
        assert.Equal(t, tc.ok, ok, tc.serial)
        assert.Equal(t, tc.size, size, tc.serial)
        assert.Equal(t, tc.max, size.MaxContainers(), tc.serial)
    }
}

func TestInitialContainers(t *testing.T) {
    d := &Dispenser{ID: 7, Size: SizeMedium}
    cs := d.InitialContainers()
    require.Len(t, cs, 6)
    for i, c := range cs {
        assert.Equal(t, uint64(7), c.DispenserID)
        assert.Equal(t, i+1, c.SlotNumber)
        assert.Equal(t, EmptySlotName(i+1), c.PillName)
    }
    assert.Equal(t, "Empty Slot 1", cs[0].PillName)
}

func TestParseTimeOfDay(t *testing.T) {
    ok := map[string]string{
        "08:00":           "08:00:00",
        "23:59:59":        "23:59:59",
        " 07:05:09 ":      "07:05:09",
        "12:30:00.000000": "12:30:00",
    }
    for in, want := range ok {
        got, err := ParseTimeOfDay(in)
        require.NoError(t, err, in)
        assert.Equal(t, want, got.String())
    }
    for _, in := range []string{"", "8:00", "24:00", "12:60", "12:00:61", "aa:bb", "12:00:00:00", "+8:00", "-0:00", "+1:+5", "08:-1"} {
        _, err := ParseTimeOfDay(in)
        assert.ErrorIs(t, err, ErrInvalidTime, in)
    }
}

func TestWeekday(t *testing.T) {
    assert.Equal(t, "Monday", Monday.String())
    assert.Equal(t, "Sunday", Sunday.String())
    assert.False(t, Weekday(7).Valid())
    assert.False(t, Weekday(-1).Valid())
    assert.Equal(t, "Weekday(9)", Weekday(9).String())
}
