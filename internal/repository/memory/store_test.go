package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/repository"
)

func seedUser(t *testing.T, s *Store, email, username string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Username: username, PasswordHash: "hash", IsActive: true}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func newDispenser(ownerID uint64, name, serial string) *model.Dispenser {
	size, _ := model.SizeFromSerial(serial)
	d := &model.Dispenser{OwnerID: ownerID, Name: name, SerialID: serial, Size: size}
	d.Containers = d.InitialContainers()
	return d
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")
	assert.NotZero(t, ann.ID)
	assert.False(t, ann.DateJoined.IsZero())

	err := s.Users().Create(ctx, &model.User{Email: "ann@example.com", Username: "other"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)
	err = s.Users().Create(ctx, &model.User{Email: "other@example.com", Username: "ann"})
	assert.ErrorIs(t, err, repository.ErrUsernameExists)

	got, err := s.Users().GetByUsername(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, got.ID)

	_, err = s.Users().GetByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	require.NoError(t, s.Users().SetActive(ann.ID, false))
	got, err = s.Users().GetByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	tokens := s.Tokens()
	require.NoError(t, tokens.StoreRefresh(ctx, 1, "h1", time.Now().Add(time.Hour)))

	tok, err := tokens.FindRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, tok.Usable(time.Now()))

	require.NoError(t, tokens.RevokeByHash(ctx, "h1"))
	require.NoError(t, tokens.RevokeByHash(ctx, "h1"))
	tok, err = tokens.FindRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, tok.Usable(time.Now()))

	_, err = tokens.FindRefresh(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestDispenserStore_CreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")

	d := newDispenser(ann.ID, "Kitchen", "M-20250524-0001")
	require.NoError(t, s.Dispensers().Create(ctx, d, model.MaxDispensersPerOwner))
	require.Len(t, d.Containers, 6)
	assert.Equal(t, "ann", d.OwnerUsername)

	loaded, err := s.Dispensers().GetByOwnerAndName(ctx, ann.ID, "Kitchen")
	require.NoError(t, err)
	require.Len(t, loaded.Containers, 6)
	for i, c := range loaded.Containers {
		assert.Equal(t, i+1, c.SlotNumber)
		assert.Equal(t, model.EmptySlotName(i+1), c.PillName)
	}

	err = s.Dispensers().Create(ctx, newDispenser(ann.ID, "Other", "M-20250524-0001"), model.MaxDispensersPerOwner)
	assert.ErrorIs(t, err, repository.ErrDuplicateSerial)
	err = s.Dispensers().Create(ctx, newDispenser(ann.ID, "Kitchen", "M-20250524-0002"), model.MaxDispensersPerOwner)
	assert.ErrorIs(t, err, repository.ErrDuplicateName)

	bob := seedUser(t, s, "bob@example.com", "bob")
	require.NoError(t, s.Dispensers().Create(ctx, newDispenser(bob.ID, "Kitchen", "S-20250524-0003"), model.MaxDispensersPerOwner))

	_, err = s.Dispensers().GetByOwnerAndName(ctx, bob.ID, "Nope")
	assert.ErrorIs(t, err, repository.ErrDispenserNotFound)
}

func TestDispenserStore_QuotaUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")

	serials := []string{
		"S-20250524-0001", "S-20250524-0002", "S-20250524-0003", "S-20250524-0004",
		"S-20250524-0005", "S-20250524-0006", "S-20250524-0007", "S-20250524-0008",
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i, serial := range serials {
		wg.Add(1)
		go func(i int, serial string) {
			defer wg.Done()
			err := s.Dispensers().Create(ctx, newDispenser(ann.ID, "Box "+serial[len(serial)-4:], serial), model.MaxDispensersPerOwner)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				ok++
			case repository.ErrQuotaExceeded:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i, serial)
	}
	wg.Wait()

	assert.Equal(t, model.MaxDispensersPerOwner, ok)
	assert.Equal(t, len(serials)-model.MaxDispensersPerOwner, full)
	n, _ := s.Dispensers().CountByOwner(ctx, ann.ID)
	assert.Equal(t, model.MaxDispensersPerOwner, n)
}

func TestDispenserStore_RenameAndDeleteCascade(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")
	bob := seedUser(t, s, "bob@example.com", "bob")

	d := newDispenser(ann.ID, "Kitchen", "S-20250524-0001")
	require.NoError(t, s.Dispensers().Create(ctx, d, model.MaxDispensersPerOwner))
	require.NoError(t, s.Dispensers().Create(ctx, newDispenser(ann.ID, "Office", "S-20250524-0002"), model.MaxDispensersPerOwner))

	assert.ErrorIs(t, s.Dispensers().Rename(ctx, d.ID, bob.ID, "Mine"), repository.ErrDispenserNotFound)
	assert.ErrorIs(t, s.Dispensers().Rename(ctx, d.ID, ann.ID, "Office"), repository.ErrDuplicateName)
	require.NoError(t, s.Dispensers().Rename(ctx, d.ID, ann.ID, "Bedroom"))

	entries := []model.ScheduleEntry{{Weekday: model.Monday, Time: 8 * 3600}, {Weekday: model.Friday, Time: 12 * 3600}}
	require.NoError(t, s.Containers().ReplaceSchedules(ctx, d.Containers[0].ID, nil, entries))

	dispensers, containers, schedules := s.Counts()
	assert.Equal(t, []int{2, 8, 2}, []int{dispensers, containers, schedules})

	_, err := s.Dispensers().DeleteByOwnerAndName(ctx, bob.ID, "Bedroom")
	assert.ErrorIs(t, err, repository.ErrDispenserNotFound)

	id, err := s.Dispensers().DeleteByOwnerAndName(ctx, ann.ID, "Bedroom")
	require.NoError(t, err)
	assert.Equal(t, d.ID, id)

	dispensers, containers, schedules = s.Counts()
	assert.Equal(t, []int{1, 4, 0}, []int{dispensers, containers, schedules})
}

func TestContainerStore_ReplaceSchedules(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")
	d := newDispenser(ann.ID, "Kitchen", "S-20250524-0001")
	require.NoError(t, s.Dispensers().Create(ctx, d, model.MaxDispensersPerOwner))
	cid := d.Containers[1].ID

	pill := "Ibuprofen"
	first := []model.ScheduleEntry{{Weekday: model.Sunday, Time: 20 * 3600}, {Weekday: model.Monday, Time: 8 * 3600}}
	require.NoError(t, s.Containers().ReplaceSchedules(ctx, cid, &pill, first))

	c, err := s.Containers().GetBySlot(ctx, d.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen", c.PillName)
	require.Len(t, c.Schedules, 2)
	assert.Equal(t, model.Monday, c.Schedules[0].Weekday)

	dup := []model.ScheduleEntry{{Weekday: model.Tuesday, Time: 60}, {Weekday: model.Tuesday, Time: 60}}
	assert.ErrorIs(t, s.Containers().ReplaceSchedules(ctx, cid, nil, dup), repository.ErrDuplicateSchedule)
	c, _ = s.Containers().GetBySlot(ctx, d.ID, 2)
	assert.Len(t, c.Schedules, 2, "failed replace must leave the old set")

	require.NoError(t, s.Containers().ReplaceSchedules(ctx, cid, nil, nil))
	c, _ = s.Containers().GetBySlot(ctx, d.ID, 2)
	assert.Empty(t, c.Schedules)

	_, err = s.Containers().GetBySlot(ctx, d.ID, 9)
	assert.ErrorIs(t, err, repository.ErrContainerNotFound)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann := seedUser(t, s, "ann@example.com", "ann")
	d := newDispenser(ann.ID, "Kitchen", "S-20250524-0001")
	require.NoError(t, s.Dispensers().Create(ctx, d, model.MaxDispensersPerOwner))

	loaded, err := s.Dispensers().GetByOwnerAndName(ctx, ann.ID, "Kitchen")
	require.NoError(t, err)
	loaded.Name = "Changed"
	loaded.Containers[0].PillName = "Changed"

	again, err := s.Dispensers().GetByOwnerAndName(ctx, ann.ID, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, "Empty Slot 1", again.Containers[0].PillName)
}
