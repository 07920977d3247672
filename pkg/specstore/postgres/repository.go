package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// ErrSpecNotFound is returned when no spec is stored for a container.
var ErrSpecNotFound = errors.New("spec not found")

// Repository stores finalized specs in the container_specs table. The container name
// is unique; a second spec for the same container is a conflict.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Connect opens and pings a Postgres database.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the container_specs table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&specModel{})
}

func (r *Repository) CreateSpec(ctx context.Context, payload core.SubmissionPayload) (core.CreatedSpec, error) {
	row, err := specModelFromPayload(payload, uuid.NewString(), r.now())
	if err != nil {
		return core.CreatedSpec{}, err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return core.CreatedSpec{}, &core.ConflictError{Name: payload.Name, Err: err}
		}
		return core.CreatedSpec{}, err
	}
	r.logger.Debug("spec row inserted", "id", row.ID, "container", row.ContainerName)
	return core.CreatedSpec{ID: row.ID, Version: fmt.Sprint(row.Version)}, nil
}

// GetSpec returns the spec stored for containerName.
func (r *Repository) GetSpec(ctx context.Context, containerName string) (core.SubmissionPayload, error) {
	var row specModel
	err := r.db.WithContext(ctx).
		Where("container_name = ?", strings.TrimSpace(containerName)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.SubmissionPayload{}, ErrSpecNotFound
		}
		return core.SubmissionPayload{}, err
	}
	return row.toPayload()
}

// ListContainers returns stored container names, optionally limited to one source group.
func (r *Repository) ListContainers(ctx context.Context, sourceGroup string) ([]string, error) {
	tx := r.db.WithContext(ctx).Model(&specModel{})
	if g := strings.TrimSpace(sourceGroup); g != "" {
		tx = tx.Where("source_group_id = ?", g)
	}
	var names []string
	if err := tx.Order("container_name ASC").Pluck("container_name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

type specModel struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	Name               string    `gorm:"column:name"`
	ContainerName      string    `gorm:"column:container_name;uniqueIndex"`
	Description        string    `gorm:"column:description"`
	KeyFields          []string  `gorm:"column:key_fields;type:text[]"`
	PartitionKeyField  string    `gorm:"column:partition_key_field"`
	PartitionKeyValue  string    `gorm:"column:partition_key_value"`
	AllowedFilters     []string  `gorm:"column:allowed_filters;type:text[]"`
	RequiredFields     []string  `gorm:"column:required_fields;type:text[]"`
	Schema             []byte    `gorm:"column:schema;type:jsonb"`
	SourceGroupID      string    `gorm:"column:source_group_id;index"`
	SourceArtifactID   string    `gorm:"column:source_artifact_id"`
	SourceArtifactType string    `gorm:"column:source_artifact_type"`
	SourceVersion      string    `gorm:"column:source_version"`
	Version            int       `gorm:"column:version"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

func (specModel) TableName() string {
	return "container_specs"
}

func specModelFromPayload(p core.SubmissionPayload, id string, now time.Time) (specModel, error) {
	schema := []byte("{}")
	if p.Schema != nil {
		b, err := json.Marshal(p.Schema)
		if err != nil {
			return specModel{}, fmt.Errorf("encode spec schema: %w", err)
		}
		schema = b
	}
	return specModel{
		ID:                 id,
		Name:               strings.TrimSpace(p.Name),
		ContainerName:      strings.TrimSpace(p.ContainerName),
		Description:        p.Description,
		KeyFields:          nonNil(p.KeyFields),
		PartitionKeyField:  p.PartitionKey.Field,
		PartitionKeyValue:  p.PartitionKey.Value,
		AllowedFilters:     nonNil(p.AllowedFilters),
		RequiredFields:     nonNil(p.RequiredFields),
		Schema:             schema,
		SourceGroupID:      p.Source.GroupID,
		SourceArtifactID:   p.Source.ArtifactID,
		SourceArtifactType: string(p.Source.ArtifactType),
		SourceVersion:      p.Source.Version,
		Version:            1,
		CreatedAt:          now,
	}, nil
}

func (m specModel) toPayload() (core.SubmissionPayload, error) {
	schema, err := jsonschema.DecodeObject(m.Schema)
	if err != nil {
		return core.SubmissionPayload{}, fmt.Errorf("decode stored schema for %s: %w", m.ContainerName, err)
	}
	return core.SubmissionPayload{
		Name:           m.Name,
		ContainerName:  m.ContainerName,
		Description:    m.Description,
		KeyFields:      nonNil(m.KeyFields),
		PartitionKey:   core.PartitionKey{Field: m.PartitionKeyField, Value: m.PartitionKeyValue},
		AllowedFilters: nonNil(m.AllowedFilters),
		RequiredFields: nonNil(m.RequiredFields),
		Schema:         schema,
		Source: core.ArtifactRef{
			GroupID:      m.SourceGroupID,
			ArtifactID:   m.SourceArtifactID,
			ArtifactType: core.ArtifactType(m.SourceArtifactType),
			Version:      m.SourceVersion,
		},
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
