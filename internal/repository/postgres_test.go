package repository

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/repository/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clipguess"),
		postgres.WithUsername("clipguess"),
		postgres.WithPassword("clipguess"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func TestPostgresRepositories(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	players := NewPostgresPlayerRepository(db)
	rooms := NewPostgresRoomRepository(db)
	submissions := NewPostgresSubmissionRepository(db)

	var aliceID string
	t.Run("GetOrCreate", func(t *testing.T) {
		alice, err := players.GetOrCreate(ctx, "Alice", "@alice_tt")
		require.NoError(t, err)
		aliceID = alice.ID

		again, err := players.GetOrCreate(ctx, "other", "ALICE_TT")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, again.ID)
	})

	t.Run("RoomMembership", func(t *testing.T) {
		roomID, err := rooms.Create(ctx, "ABCDEF")
		require.NoError(t, err)
		require.NoError(t, rooms.AddMember(ctx, roomID, aliceID, "s1"))
		require.NoError(t, rooms.AddMember(ctx, roomID, aliceID, "s2"))

		var members []model.RoomMember
		require.NoError(t, db.Find(&members).Error)
		require.Len(t, members, 1)
		assert.Equal(t, "s2", members[0].SessionID)
	})

	t.Run("SaveDedupes", func(t *testing.T) {
		n, err := submissions.Save(ctx, aliceID, []string{
			"https://www.tiktok.com/@a/video/1",
			"https://www.tiktok.com/@a/video/2",
			"https://www.tiktok.com/@a/video/3",
			"https://www.tiktok.com/@x/video/1",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = submissions.Save(ctx, aliceID, []string{"https://www.tiktok.com/@a/video/2"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("EligibleAndMarkPlayed", func(t *testing.T) {
		all, err := submissions.Eligible(ctx, []string{aliceID}, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)

		require.NoError(t, submissions.MarkPlayed(ctx, all[0].ID, "ABCDEF"))

		counts, err := submissions.PlayableCounts(ctx, []string{aliceID})
		require.NoError(t, err)
		assert.Equal(t, 2, counts[aliceID])

		got, err := submissions.Eligible(ctx, []string{aliceID}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, all[0].ID, got[2].ID, "played submission only tops up")

		var history []model.PlayHistory
		require.NoError(t, db.Find(&history).Error)
		assert.Len(t, history, 1)
	})
}
