package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"github.com/okian/meeple/internal/domain/model"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultLocalLimit = 2000
	defaultBatchSize  = 500
)

// GameRecord is the games table.
type GameRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Name       string `gorm:"not null"`
	Year       int
	Rating     float64 `gorm:"not null;default:0"`
	Rank       int     `gorm:"not null;default:0;index"`
	Weight     float64 `gorm:"not null;default:0"`
	MinPlayers int
	MaxPlayers int
	Votes      int            `gorm:"not null;default:0"`
	Owners     int            `gorm:"not null;default:0"`
	Categories datatypes.JSON `gorm:"not null"`
	Mechanics  datatypes.JSON `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (GameRecord) TableName() string { return "games" }

// CollectionRecord is one user collection entry.
type CollectionRecord struct {
	UserID string   `gorm:"primaryKey;size:128"`
	GameID int64    `gorm:"primaryKey;autoIncrement:false;index"`
	Rating *float64 // nil when the user never rated the game
	Status string   `gorm:"not null;size:16"`
}

// TableName implements gorm's tabler.
func (CollectionRecord) TableName() string { return "collections" }

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialector.Name() == DriverSQLite {
		// sqlite allows one writer; a single connection serializes them.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", driver, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&GameRecord{}, &CollectionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// GormStore implements Store and Writer on a gorm connection.
type GormStore struct {
	db         *gorm.DB
	localLimit int
	batchSize  int
}

var (
	_ Store  = (*GormStore)(nil)
	_ Writer = (*GormStore)(nil)
)

// NewGormStore creates a store on db. The schema must already be migrated.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db, localLimit: defaultLocalLimit, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, op, err)
}

func (s *GormStore) GetGame(ctx context.Context, id int64) (model.Game, error) {
	var rec GameRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.Game{}, fmt.Errorf("game %d: %w", id, model.ErrNotFound)
	case err != nil:
		return model.Game{}, unavailable("get game", err)
	}
	return toGame(rec)
}

func (s *GormStore) GetGames(ctx context.Context, ids []int64) (map[int64]model.Game, error) {
	out := make(map[int64]model.Game, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		var recs []GameRecord
		if err := s.db.WithContext(ctx).Where("id IN ?", ids[start:end]).Find(&recs).Error; err != nil {
			return nil, unavailable("get games", err)
		}
		for _, rec := range recs {
			g, err := toGame(rec)
			if err != nil {
				return nil, err
			}
			out[g.ID] = g
		}
	}
	return out, nil
}

func (s *GormStore) GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	var recs []CollectionRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("game_id").Find(&recs).Error
	if err != nil {
		return model.UserProfile{}, unavailable("get profile", err)
	}
	owned := make([]model.OwnedGame, len(recs))
	for i, r := range recs {
		owned[i] = model.OwnedGame{GameID: r.GameID, Rating: r.Rating, Status: model.CollectionStatus(r.Status)}
	}
	return model.NewUserProfile(userID, owned), nil
}

func (s *GormStore) CountGames(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&GameRecord{}).Count(&n).Error; err != nil {
		return 0, unavailable("count games", err)
	}
	return int(n), nil
}

func (s *GormStore) CatalogStats(ctx context.Context) (model.CatalogStats, error) {
	var stats model.CatalogStats
	count, err := s.CountGames(ctx)
	if err != nil {
		return stats, err
	}
	stats.Count = count

	type row struct {
		Rating float64
		Rank   int
	}
	var rows []row
	err = s.db.WithContext(ctx).Model(&GameRecord{}).
		Select("rating", "rank").
		Where("rating > 0 OR rank > 0").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return stats, unavailable("catalog stats", err)
	}
	var sum float64
	for _, r := range rows {
		q, ok := model.Quality(model.Game{Rating: r.Rating, Rank: r.Rank})
		if !ok {
			continue
		}
		sum += q
		stats.RatedCount++
	}
	if stats.RatedCount > 0 {
		stats.MeanQuality = sum / float64(stats.RatedCount)
	}
	return stats, nil
}

func (s *GormStore) ListGameIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&GameRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, unavailable("list games", err)
	}
	return ids, nil
}

// Snapshot returns every game and rating for the rich tier, and the
// top-ranked games (up to the local limit) with the ratings among them for
// the reduced tier. Unrated collection entries contribute their implicit
// rating.
func (s *GormStore) Snapshot(ctx context.Context, scope model.Tier) (model.Snapshot, error) {
	snap := model.Snapshot{Scope: scope}
	q := s.db.WithContext(ctx).Model(&GameRecord{})
	switch scope {
	case model.TierRich:
		q = q.Order("id")
	case model.TierReduced:
		q = q.Where("rank > 0").Order("rank").Order("id").Limit(s.localLimit)
	default:
		return snap, fmt.Errorf("%w: %s", ErrScope, scope)
	}

	var recs []GameRecord
	if err := q.Find(&recs).Error; err != nil {
		return snap, unavailable("snapshot games", err)
	}
	snap.Games = make([]model.Game, 0, len(recs))
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		g, err := toGame(rec)
		if err != nil {
			return snap, err
		}
		snap.Games = append(snap.Games, g)
		ids = append(ids, g.ID)
	}

	var entries []CollectionRecord
	cq := s.db.WithContext(ctx).Order("user_id").Order("game_id")
	if scope == model.TierReduced {
		cq = cq.Where("game_id IN ?", ids)
	}
	if len(ids) > 0 {
		if err := cq.Find(&entries).Error; err != nil {
			return snap, unavailable("snapshot ratings", err)
		}
	}
	snap.Ratings = make([]model.Rating, len(entries))
	for i, e := range entries {
		owned := model.OwnedGame{GameID: e.GameID, Rating: e.Rating, Status: model.CollectionStatus(e.Status)}
		snap.Ratings[i] = model.Rating{UserID: e.UserID, GameID: e.GameID, Value: owned.EffectiveRating()}
	}
	return snap, nil
}

func (s *GormStore) UpsertGames(ctx context.Context, games []model.Game) error {
	if len(games) == 0 {
		return nil
	}
	recs := make([]GameRecord, len(games))
	for i, g := range games {
		rec, err := fromGame(g)
		if err != nil {
			return err
		}
		recs[i] = rec
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		CreateInBatches(recs, s.batchSize).Error
	if err != nil {
		return unavailable("upsert games", err)
	}
	return nil
}

func (s *GormStore) ReplaceCollection(ctx context.Context, userID string, games []model.OwnedGame) error {
	profile := model.NewUserProfile(userID, games)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&CollectionRecord{}).Error; err != nil {
			return unavailable("clear collection", err)
		}
		if len(profile.Games) == 0 {
			return nil
		}
		recs := make([]CollectionRecord, len(profile.Games))
		for i, g := range profile.Games {
			status := g.Status
			if status == "" {
				status = model.StatusOwn
			}
			recs[i] = CollectionRecord{UserID: userID, GameID: g.GameID, Rating: g.Rating, Status: string(status)}
		}
		if err := tx.CreateInBatches(recs, s.batchSize).Error; err != nil {
			return unavailable("write collection", err)
		}
		return nil
	})
}

func toGame(rec GameRecord) (model.Game, error) {
	g := model.Game{
		ID:         rec.ID,
		Name:       rec.Name,
		Year:       rec.Year,
		Rating:     rec.Rating,
		Rank:       rec.Rank,
		Weight:     rec.Weight,
		MinPlayers: rec.MinPlayers,
		MaxPlayers: rec.MaxPlayers,
		Votes:      rec.Votes,
		Owners:     rec.Owners,
	}
	if err := decodeLabels(rec.Categories, &g.Categories); err != nil {
		return g, unavailable(fmt.Sprintf("game %d categories", rec.ID), err)
	}
	if err := decodeLabels(rec.Mechanics, &g.Mechanics); err != nil {
		return g, unavailable(fmt.Sprintf("game %d mechanics", rec.ID), err)
	}
	return g, nil
}

func fromGame(g model.Game) (GameRecord, error) {
	cats, err := encodeLabels(g.Categories)
	if err != nil {
		return GameRecord{}, err
	}
	mechs, err := encodeLabels(g.Mechanics)
	if err != nil {
		return GameRecord{}, err
	}
	return GameRecord{
		ID:         g.ID,
		Name:       g.Name,
		Year:       g.Year,
		Rating:     g.Rating,
		Rank:       g.Rank,
		Weight:     g.Weight,
		MinPlayers: g.MinPlayers,
		MaxPlayers: g.MaxPlayers,
		Votes:      g.Votes,
		Owners:     g.Owners,
		Categories: cats,
		Mechanics:  mechs,
	}, nil
}

func encodeLabels(labels []string) (datatypes.JSON, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	return datatypes.JSON(b), nil
}

func decodeLabels(raw datatypes.JSON, into *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
