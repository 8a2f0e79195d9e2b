// Package memory provides an in-memory implementation of the dispenser
// persistence layer used for tests and ephemeral environments.  It
// returns the same sentinel errors as the MySQL repositories and
// enforces the same uniqueness and cascade rules.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/repository"
)

type state struct {
	users      map[uint64]model.User
	tokens     map[string]model.RefreshToken
	dispensers map[uint64]model.Dispenser
	containers map[uint64]model.Container
	schedules  map[uint64]model.Schedule
}

// Store keeps every table in maps guarded by one lock.  Rows are stored
// flat by id; trees are assembled on read and returned as copies so
// callers can never mutate stored state.
type Store struct {
	mu     sync.RWMutex
	nextID uint64
	now    func() time.Time
	state  state
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now: func() time.Time { return time.Now().UTC() },
		state: state{
			users:      make(map[uint64]model.User),
			tokens:     make(map[string]model.RefreshToken),
			dispensers: make(map[uint64]model.Dispenser),
			containers: make(map[uint64]model.Container),
			schedules:  make(map[uint64]model.Schedule),
		},
	}
}

// Users returns the account view of the store.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Tokens returns the refresh token view of the store.
func (s *Store) Tokens() *TokenStore { return &TokenStore{s: s} }

// Dispensers returns the dispenser view of the store.
func (s *Store) Dispensers() *DispenserStore { return &DispenserStore{s: s} }

// Containers returns the container and schedule view of the store.
func (s *Store) Containers() *ContainerStore { return &ContainerStore{s: s} }

// id hands out the next primary key.  Callers hold the write lock.
func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

func cloneUser(u model.User) *model.User {
	if u.PhoneNumber != nil {
		p := *u.PhoneNumber
		u.PhoneNumber = &p
	}
	return &u
}

// containerTree assembles a container with its schedules ordered by
// weekday then time.  Callers hold at least the read lock.
func (s *Store) containerTree(c model.Container) model.Container {
	c.Schedules = nil
	for _, sc := range s.state.schedules {
		if sc.ContainerID == c.ID {
			c.Schedules = append(c.Schedules, sc)
		}
	}
	sort.Slice(c.Schedules, func(i, j int) bool {
		a, b := c.Schedules[i], c.Schedules[j]
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.Time < b.Time
	})
	return c
}

// dispenserTree assembles a dispenser with its containers ordered by slot.
// Callers hold at least the read lock.
func (s *Store) dispenserTree(d model.Dispenser) *model.Dispenser {
	d.OwnerUsername = s.state.users[d.OwnerID].Username
	d.Containers = nil
	for _, c := range s.state.containers {
		if c.DispenserID == d.ID {
			d.Containers = append(d.Containers, s.containerTree(c))
		}
	}
	sort.Slice(d.Containers, func(i, j int) bool { return d.Containers[i].SlotNumber < d.Containers[j].SlotNumber })
	return &d
}

// findDispenser returns the owner's dispenser called name.  Callers hold
// at least the read lock.
func (s *Store) findDispenser(ownerID uint64, name string) (model.Dispenser, bool) {
	for _, d := range s.state.dispensers {
		if d.OwnerID == ownerID && d.Name == name {
			return d, true
		}
	}
	return model.Dispenser{}, false
}

// deleteContainer removes c and its schedules.  Callers hold the write lock.
func (s *Store) deleteContainer(id uint64) {
	for sid, sc := range s.state.schedules {
		if sc.ContainerID == id {
			delete(s.state.schedules, sid)
		}
	}
	delete(s.state.containers, id)
}

// UserStore implements account persistence.
type UserStore struct{ s *Store }

func (u *UserStore) Create(_ context.Context, in *model.User) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.users {
		if existing.Email == in.Email {
			return repository.ErrEmailExists
		}
		if existing.Username == in.Username {
			return repository.ErrUsernameExists
		}
	}
	in.ID = s.id()
	in.DateJoined = s.now()
	s.state.users[in.ID] = *cloneUser(*in)
	return nil
}

func (u *UserStore) EmailExists(_ context.Context, email string) (bool, error) {
	_, err := u.find(func(x model.User) bool { return x.Email == email })
	return err == nil, nil
}

func (u *UserStore) UsernameExists(_ context.Context, username string) (bool, error) {
	_, err := u.find(func(x model.User) bool { return x.Username == username })
	return err == nil, nil
}

func (u *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return u.find(func(x model.User) bool { return x.Email == email })
}

func (u *UserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return u.find(func(x model.User) bool { return x.Username == username })
}

func (u *UserStore) GetByID(_ context.Context, id uint64) (*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	found, ok := u.s.state.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(found), nil
}

// List returns every account ordered by id.
func (u *UserStore) List(_ context.Context) ([]*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make([]*model.User, 0, len(u.s.state.users))
	for _, x := range u.s.state.users {
		out = append(out, cloneUser(x))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetActive toggles the active flag of an account.  There is no HTTP
// operation for this; it lets tests and tooling disable a user.
func (u *UserStore) SetActive(id uint64, active bool) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	found, ok := u.s.state.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	found.IsActive = active
	u.s.state.users[id] = found
	return nil
}

func (u *UserStore) find(match func(model.User) bool) (*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, x := range u.s.state.users {
		if match(x) {
			return cloneUser(x), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// TokenStore implements refresh token persistence.
type TokenStore struct{ s *Store }

func (t *TokenStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.state.tokens[tokenHash]; dup {
		return repository.ErrConflict
	}
	s.state.tokens[tokenHash] = model.RefreshToken{
		ID:        s.id(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp,
		CreatedAt: s.now(),
	}
	return nil
}

func (t *TokenStore) FindRefresh(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tok, ok := t.s.state.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	if tok.RevokedAt != nil {
		at := *tok.RevokedAt
		tok.RevokedAt = &at
	}
	return &tok, nil
}

func (t *TokenStore) RevokeByHash(_ context.Context, tokenHash string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.state.tokens[tokenHash]
	if !ok || tok.RevokedAt != nil {
		return nil
	}
	now := s.now()
	tok.RevokedAt = &now
	s.state.tokens[tokenHash] = tok
	return nil
}

func (t *TokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for h, tok := range s.state.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			tok.RevokedAt = &now
			s.state.tokens[h] = tok
		}
	}
	return nil
}

// DispenserStore implements dispenser persistence.
type DispenserStore struct{ s *Store }

func (d *DispenserStore) SerialExists(_ context.Context, serialID string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	for _, x := range d.s.state.dispensers {
		if x.SerialID == serialID {
			return true, nil
		}
	}
	return false, nil
}

func (d *DispenserStore) NameExists(_ context.Context, ownerID uint64, name string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	_, ok := d.s.findDispenser(ownerID, name)
	return ok, nil
}

func (d *DispenserStore) CountByOwner(_ context.Context, ownerID uint64) (int, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	return d.s.countByOwner(ownerID), nil
}

func (s *Store) countByOwner(ownerID uint64) int {
	n := 0
	for _, x := range s.state.dispensers {
		if x.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// Create inserts in and its containers atomically.  Uniqueness and the
// quota are re-checked under the write lock.
func (d *DispenserStore) Create(_ context.Context, in *model.Dispenser, quota int) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.state.users[in.OwnerID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if s.countByOwner(in.OwnerID) >= quota {
		return repository.ErrQuotaExceeded
	}
	for _, x := range s.state.dispensers {
		if x.SerialID == in.SerialID {
			return repository.ErrDuplicateSerial
		}
		if x.OwnerID == in.OwnerID && x.Name == in.Name {
			return repository.ErrDuplicateName
		}
	}
	slots := make(map[int]bool, len(in.Containers))
	for _, c := range in.Containers {
		if slots[c.SlotNumber] {
			return repository.ErrDuplicateSlot
		}
		slots[c.SlotNumber] = true
	}

	in.ID = s.id()
	in.OwnerUsername = owner.Username
	in.CreatedAt = s.now()
	row := *in
	row.Containers = nil
	s.state.dispensers[in.ID] = row
	for i := range in.Containers {
		c := &in.Containers[i]
		c.ID = s.id()
		c.DispenserID = in.ID
		stored := *c
		stored.Schedules = nil
		s.state.containers[c.ID] = stored
	}
	return nil
}

func (d *DispenserStore) GetByOwnerAndName(_ context.Context, ownerID uint64, name string) (*model.Dispenser, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	found, ok := d.s.findDispenser(ownerID, name)
	if !ok {
		return nil, repository.ErrDispenserNotFound
	}
	return d.s.dispenserTree(found), nil
}

// ListByOwner returns the owner's dispensers in creation order.
func (d *DispenserStore) ListByOwner(_ context.Context, ownerID uint64) ([]*model.Dispenser, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	var out []*model.Dispenser
	for _, x := range d.s.state.dispensers {
		if x.OwnerID == ownerID {
			out = append(out, d.s.dispenserTree(x))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *DispenserStore) Rename(_ context.Context, id, ownerID uint64, newName string) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.dispensers[id]
	if !ok || row.OwnerID != ownerID {
		return repository.ErrDispenserNotFound
	}
	if other, taken := s.findDispenser(ownerID, newName); taken && other.ID != id {
		return repository.ErrDuplicateName
	}
	row.Name = newName
	s.state.dispensers[id] = row
	return nil
}

// DeleteByOwnerAndName removes the dispenser with its containers and
// schedules and returns the deleted id.
func (d *DispenserStore) DeleteByOwnerAndName(_ context.Context, ownerID uint64, name string) (uint64, error) {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.findDispenser(ownerID, name)
	if !ok {
		return 0, repository.ErrDispenserNotFound
	}
	for cid, c := range s.state.containers {
		if c.DispenserID == row.ID {
			s.deleteContainer(cid)
		}
	}
	delete(s.state.dispensers, row.ID)
	return row.ID, nil
}

// ContainerStore implements container and schedule persistence.
type ContainerStore struct{ s *Store }

func (c *ContainerStore) GetBySlot(_ context.Context, dispenserID uint64, slot int) (*model.Container, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	for _, x := range c.s.state.containers {
		if x.DispenserID == dispenserID && x.SlotNumber == slot {
			tree := c.s.containerTree(x)
			return &tree, nil
		}
	}
	return nil, repository.ErrContainerNotFound
}

func (c *ContainerStore) UpdatePillName(_ context.Context, containerID uint64, pillName string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.containers[containerID]
	if !ok {
		return repository.ErrContainerNotFound
	}
	row.PillName = pillName
	s.state.containers[containerID] = row
	return nil
}

// ReplaceSchedules swaps the container's schedule set and optionally its
// pill name under a single write lock, so readers never see a partial set.
func (c *ContainerStore) ReplaceSchedules(_ context.Context, containerID uint64, pillName *string, entries []model.ScheduleEntry) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.containers[containerID]
	if !ok {
		return repository.ErrContainerNotFound
	}
	seen := make(map[model.ScheduleEntry]bool, len(entries))
	for _, e := range entries {
		if seen[e] {
			return repository.ErrDuplicateSchedule
		}
		seen[e] = true
	}

	if pillName != nil {
		row.PillName = *pillName
		s.state.containers[containerID] = row
	}
	for sid, sc := range s.state.schedules {
		if sc.ContainerID == containerID {
			delete(s.state.schedules, sid)
		}
	}
	for _, e := range entries {
		id := s.id()
		s.state.schedules[id] = model.Schedule{ID: id, ContainerID: containerID, Weekday: e.Weekday, Time: e.Time}
	}
	return nil
}

// Counts reports how many rows each table holds.  Tests use it to check
// that deletes cascade.
func (s *Store) Counts() (dispensers, containers, schedules int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.dispensers), len(s.state.containers), len(s.state.schedules)
}
