package brandstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/brandstore"
)

func profile(name string) *vr.BrandProfile {
	return &vr.BrandProfile{
		ID:           "brand-" + name,
		Name:         name,
		ColorPalette: []string{"#0A2540", "#635BFF", "#00D4FF"},
		Fonts:        vr.BrandFonts{Primary: "Inter", Secondary: "Source Serif"},
		CreatedAt:    "2025-03-01T00:00:00Z",
		UpdatedAt:    "2025-03-01T00:00:00Z",
	}
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:brandstore_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func newGormStore(t *testing.T) *brandstore.GormStore {
	t.Helper()
	s := brandstore.NewGormStore(setupDB(t))
	require.NoError(t, s.Migrate())
	return s
}

func stores(t *testing.T) map[string]brandstore.Store {
	return map[string]brandstore.Store{
		"memory": brandstore.NewMemory(),
		"gorm":   newGormStore(t),
	}
}

func TestStore_SaveLoadDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.Load(ctx, "u1")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, s.Save(ctx, "u1", profile("Acme")))
			got, err = s.Load(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, profile("Acme"), got)

			require.NoError(t, s.Save(ctx, "u1", profile("Globex")))
			got, err = s.Load(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "Globex", got.Name)

			require.NoError(t, s.Delete(ctx, "u1"))
			got, err = s.Load(ctx, "u1")
			require.NoError(t, err)
			assert.Nil(t, got)

			assert.NoError(t, s.Delete(ctx, "u1"))
		})
	}
}

func TestStore_UsersAreIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "u1", profile("Acme")))

			got, err := s.Load(ctx, "u2")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_RejectsInvalidProfile(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := profile("Acme")
			p.ColorPalette = []string{"#0A2540"}

			err := s.Save(ctx, "u1", p)
			require.Error(t, err)
			assert.ErrorIs(t, err, vr.ErrInvalidInput)

			got, err := s.Load(ctx, "u1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_RequiresUser(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Load(ctx, "")
			assert.ErrorIs(t, err, vr.ErrInvalidInput)
			assert.ErrorIs(t, s.Save(ctx, "", profile("Acme")), vr.ErrInvalidInput)
			assert.ErrorIs(t, s.Delete(ctx, ""), vr.ErrInvalidInput)
		})
	}
}

func TestGormStore_CorruptRowIsRejected(t *testing.T) {
	db := setupDB(t)
	s := brandstore.NewGormStore(db)
	require.NoError(t, s.Migrate())

	row := brandstore.ProfileRow{UserID: "u1", Profile: datatypes.JSON([]byte(`{"id":"x","colorPalette":["nope"]}`))}
	require.NoError(t, db.Create(&row).Error)

	_, err := s.Load(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrInvalidInput)
}
