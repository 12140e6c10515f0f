package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/immxrtalbeast/clipguess/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const neverPlayed = "NOT EXISTS (SELECT 1 FROM play_histories ph WHERE ph.submission_id = submissions.id)"

type PostgresPlayerRepository struct {
	db *gorm.DB
}

func NewPostgresPlayerRepository(db *gorm.DB) *PostgresPlayerRepository {
	return &PostgresPlayerRepository{db: db}
}

func (r *PostgresPlayerRepository) GetOrCreate(ctx context.Context, username, externalName string) (*domain.Profile, error) {
	const op = "repository.postgres.player.get_or_create"

	external := domain.NormalizeExternalName(externalName, username)

	var player model.Player
	err := r.db.WithContext(ctx).
		Where("LOWER(TRIM(external_name)) = LOWER(TRIM(?)) OR LOWER(TRIM(username)) = LOWER(TRIM(?))", external, username).
		First(&player).Error
	if err == nil {
		return toDomainProfile(&player), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	profile := domain.NewGuestProfile(username, externalName)
	player = model.Player{
		ID:           uuid.MustParse(profile.ID),
		Username:     profile.Username,
		ExternalName: profile.ExternalName,
		CreatedAt:    time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&player).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return profile, nil
}

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, code string) (string, error) {
	const op = "repository.postgres.room.create"

	room := model.Room{
		ID:        uuid.New(),
		Code:      code,
		Status:    string(domain.RoomStatusLobby),
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&room).Error; err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return room.ID.String(), nil
}

func (r *PostgresRoomRepository) AddMember(ctx context.Context, roomID, playerID, sessionID string) error {
	const op = "repository.postgres.room.add_member"

	roomUUID, err := uuid.Parse(roomID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrRoomNotFound)
	}
	playerUUID, err := uuid.Parse(playerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrPlayerNotFound)
	}

	member := model.RoomMember{
		RoomID:    roomUUID,
		PlayerID:  playerUUID,
		SessionID: sessionID,
		JoinedAt:  time.Now(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id"}),
	}).Create(&member).Error
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type PostgresSubmissionRepository struct {
	db *gorm.DB
}

func NewPostgresSubmissionRepository(db *gorm.DB) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db}
}

func (r *PostgresSubmissionRepository) Save(ctx context.Context, ownerID string, urls []string) (int, error) {
	const op = "repository.postgres.submission.save"

	if len(urls) == 0 {
		return 0, nil
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, ErrPlayerNotFound)
	}

	now := time.Now()
	rows := make([]model.Submission, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		var externalID *string
		if id := domain.VideoID(u); id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			externalID = &id
		}
		rows = append(rows, model.Submission{
			ID:         uuid.New(),
			PlayerID:   owner,
			VideoURL:   u,
			ExternalID: externalID,
			CreatedAt:  now,
		})
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("%s: %w", op, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *PostgresSubmissionRepository) Eligible(ctx context.Context, ownerIDs []string, limit int) ([]domain.Round, error) {
	const op = "repository.postgres.submission.eligible"

	owners := parseUUIDs(ownerIDs)
	if len(owners) == 0 || limit <= 0 {
		return nil, nil
	}

	var fresh []model.Submission
	err := r.db.WithContext(ctx).
		Where("player_id IN ?", owners).
		Where(neverPlayed).
		Order("RANDOM()").
		Limit(limit).
		Find(&fresh).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(fresh) == 0 || len(fresh) >= limit {
		return toDomainRounds(fresh), nil
	}

	var fallback []model.Submission
	err = r.db.WithContext(ctx).
		Where("player_id IN ?", owners).
		Order("play_count ASC").
		Order("last_played_at ASC NULLS FIRST").
		Limit(fallbackScanLimit).
		Find(&fallback).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return mergeEligible(toDomainRounds(fresh), toDomainRounds(fallback), limit), nil
}

func (r *PostgresSubmissionRepository) MarkPlayed(ctx context.Context, submissionID, roomCode string) error {
	const op = "repository.postgres.submission.mark_played"

	id, err := uuid.Parse(submissionID)
	if err != nil {
		return fmt.Errorf("%s: invalid submission id: %w", op, err)
	}

	now := time.Now()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.PlayHistory{RoomCode: roomCode, SubmissionID: id, PlayedAt: now}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Submission{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"play_count":     gorm.Expr("play_count + 1"),
				"last_played_at": now,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) PlayableCounts(ctx context.Context, ownerIDs []string) (map[string]int, error) {
	const op = "repository.postgres.submission.playable_counts"

	owners := parseUUIDs(ownerIDs)
	counts := make(map[string]int)
	if len(owners) == 0 {
		return counts, nil
	}

	var rows []struct {
		PlayerID uuid.UUID
		Count    int
	}
	err := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Select("player_id, COUNT(*) AS count").
		Where("player_id IN ?", owners).
		Where(neverPlayed).
		Group("player_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, row := range rows {
		counts[row.PlayerID.String()] = row.Count
	}
	return counts, nil
}

// parseUUIDs drops ids that are not uuids, such as in-memory fallbacks.
func parseUUIDs(ids []string) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
			res = append(res, u)
		}
	}
	return res
}

func toDomainProfile(p *model.Player) *domain.Profile {
	profile := &domain.Profile{
		ID:           p.ID.String(),
		Username:     p.Username,
		ExternalName: p.ExternalName,
	}
	if p.AvatarURL != nil {
		profile.AvatarURL = *p.AvatarURL
	}
	return profile
}

func toDomainRounds(rows []model.Submission) []domain.Round {
	res := make([]domain.Round, 0, len(rows))
	for _, s := range rows {
		res = append(res, domain.Round{
			ID:        s.ID.String(),
			VideoURL:  s.VideoURL,
			OwnerID:   s.PlayerID.String(),
			Persisted: true,
		})
	}
	return res
}
