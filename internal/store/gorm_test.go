package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/keyforge-io/keyforge/internal/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestGormStore opens an in-memory SQLite database with the same config
// the server uses (TranslateError on) and migrates the schema.
func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Seller{}, &models.Application{}, &models.EndUser{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormStore(conn)
}

func seedGorm(t *testing.T, s *GormStore) (*models.Seller, *models.Application) {
	t.Helper()
	ctx := context.Background()
	seller := &models.Seller{Username: "acme", Password: "hash", OwnerID: "owner-1"}
	if errCreate := s.CreateSeller(ctx, seller); errCreate != nil {
		t.Fatalf("create seller: %v", errCreate)
	}
	app := &models.Application{AppID: "app-1", AppSecret: "secret-1", Name: "Loader", OwnerID: seller.OwnerID}
	if errCreate := s.CreateApplication(ctx, app); errCreate != nil {
		t.Fatalf("create application: %v", errCreate)
	}
	return seller, app
}

func TestGormDuplicateSeller(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	if errCreate := s.CreateSeller(ctx, &models.Seller{Username: "acme", Password: "h", OwnerID: "o1"}); errCreate != nil {
		t.Fatalf("create seller: %v", errCreate)
	}
	errDup := s.CreateSeller(ctx, &models.Seller{Username: "acme", Password: "h", OwnerID: "o2"})
	if !errors.Is(errDup, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", errDup)
	}
}

func TestGormDuplicateEndUserUsername(t *testing.T) {
	s := newTestGormStore(t)
	_, app := seedGorm(t, s)
	ctx := context.Background()

	expiry := time.Now().UTC().AddDate(0, 0, 30)
	if errCreate := s.CreateEndUser(ctx, &models.EndUser{ID: "u1", AppID: app.AppID, Username: "alice", Password: "pw", ExpiresAt: expiry}); errCreate != nil {
		t.Fatalf("create end user: %v", errCreate)
	}
	errDup := s.CreateEndUser(ctx, &models.EndUser{ID: "u2", AppID: app.AppID, Username: "alice", Password: "pw", ExpiresAt: expiry})
	if !errors.Is(errDup, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same (app, username), got %v", errDup)
	}

	// Same username under a different application is allowed.
	other := &models.Application{AppID: "app-2", AppSecret: "secret-2", Name: "Other", OwnerID: "owner-1"}
	if errCreate := s.CreateApplication(ctx, other); errCreate != nil {
		t.Fatalf("create application: %v", errCreate)
	}
	if errCreate := s.CreateEndUser(ctx, &models.EndUser{ID: "u3", AppID: other.AppID, Username: "alice", Password: "pw", ExpiresAt: expiry}); errCreate != nil {
		t.Fatalf("same username under another app: %v", errCreate)
	}
}

func TestGormBindHWIDConditional(t *testing.T) {
	s := newTestGormStore(t)
	_, app := seedGorm(t, s)
	ctx := context.Background()

	user := &models.EndUser{ID: "u1", AppID: app.AppID, Username: "alice", Password: "pw", ExpiresAt: time.Now().UTC().AddDate(0, 0, 30)}
	if errCreate := s.CreateEndUser(ctx, user); errCreate != nil {
		t.Fatalf("create end user: %v", errCreate)
	}

	bound, errBind := s.BindHWID(ctx, user.ID, "H1")
	if errBind != nil {
		t.Fatalf("bind hwid: %v", errBind)
	}
	if !bound {
		t.Fatalf("expected first bind to win")
	}

	bound, errBind = s.BindHWID(ctx, user.ID, "H2")
	if errBind != nil {
		t.Fatalf("second bind: %v", errBind)
	}
	if bound {
		t.Fatalf("second bind must not overwrite")
	}

	stored, errGet := s.EndUserByID(ctx, user.ID)
	if errGet != nil {
		t.Fatalf("end user by id: %v", errGet)
	}
	if stored.HWID == nil || *stored.HWID != "H1" {
		t.Fatalf("expected hwid H1, got %v", stored.HWID)
	}
}

func TestGormDeleteSellerCascade(t *testing.T) {
	s := newTestGormStore(t)
	seller, app := seedGorm(t, s)
	ctx := context.Background()

	user := &models.EndUser{ID: "u1", AppID: app.AppID, Username: "alice", Password: "pw", ExpiresAt: time.Now().UTC().AddDate(0, 0, 30)}
	if errCreate := s.CreateEndUser(ctx, user); errCreate != nil {
		t.Fatalf("create end user: %v", errCreate)
	}

	if errDelete := s.DeleteSeller(ctx, seller.OwnerID); errDelete != nil {
		t.Fatalf("delete seller: %v", errDelete)
	}

	if _, errFind := s.SellerByOwnerID(ctx, seller.OwnerID); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("expected seller gone, got %v", errFind)
	}
	if _, errFind := s.ApplicationByAppID(ctx, app.AppID); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("expected application gone, got %v", errFind)
	}
	if _, errFind := s.EndUserByID(ctx, user.ID); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("expected end user gone, got %v", errFind)
	}
}

func TestGormEndUsersByAppFilter(t *testing.T) {
	s := newTestGormStore(t)
	_, app := seedGorm(t, s)
	ctx := context.Background()

	expiry := time.Now().UTC().AddDate(0, 0, 30)
	for i, name := range []string{"alice", "alicia", "bob"} {
		user := &models.EndUser{ID: string(rune('a' + i)), AppID: app.AppID, Username: name, Password: "pw", ExpiresAt: expiry}
		if errCreate := s.CreateEndUser(ctx, user); errCreate != nil {
			t.Fatalf("create %s: %v", name, errCreate)
		}
	}

	users, errList := s.EndUsersByApp(ctx, app.AppID, "ali")
	if errList != nil {
		t.Fatalf("list users: %v", errList)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 matches for %q, got %d", "ali", len(users))
	}

	all, errAll := s.EndUsersByApp(ctx, app.AppID, "")
	if errAll != nil {
		t.Fatalf("list all: %v", errAll)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 users, got %d", len(all))
	}
}

func TestGormUpdateExpiryNotFound(t *testing.T) {
	s := newTestGormStore(t)

	errUpdate := s.UpdateExpiry(context.Background(), "missing", time.Now().UTC())
	if !errors.Is(errUpdate, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errUpdate)
	}
}
