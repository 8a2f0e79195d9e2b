package service

import (
	"context"
	"time"

	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/validation"
)

// UserStore is the account persistence the services need.  Both the MySQL
// repositories and the in-memory store satisfy it.
type UserStore interface {
	validation.UserLookup
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	FindRefresh(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// DispenserStore persists dispensers.  Every method is owner scoped.
type DispenserStore interface {
	validation.DispenserLookup
	Create(ctx context.Context, d *model.Dispenser, quota int) error
	GetByOwnerAndName(ctx context.Context, ownerID uint64, name string) (*model.Dispenser, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]*model.Dispenser, error)
	Rename(ctx context.Context, id, ownerID uint64, newName string) error
	DeleteByOwnerAndName(ctx context.Context, ownerID uint64, name string) (uint64, error)
}

// ContainerStore persists containers and their schedules.  Callers resolve
// the owning dispenser first.
type ContainerStore interface {
	GetBySlot(ctx context.Context, dispenserID uint64, slot int) (*model.Container, error)
	UpdatePillName(ctx context.Context, containerID uint64, pillName string) error
	ReplaceSchedules(ctx context.Context, containerID uint64, pillName *string, entries []model.ScheduleEntry) error
}
