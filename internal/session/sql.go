package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite" // Pure Go SQLite driver (uses modernc.org/sqlite)
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sessionsDB = "sessions.db"

// SQLStore keeps a profile's sessions in a SQL database, one row per session.
type SQLStore struct {
	db      *gorm.DB
	profile string
}

// instanceRecord is the flattened row shape of an Instance. Nullable columns
// carry the optional SandboxInfo fields.
type instanceRecord struct {
	Profile     string `gorm:"primaryKey"`
	ID          string `gorm:"primaryKey"`
	Position    int
	Title       string
	ProjectPath string
	GroupPath   string
	Tool        string
	Created     time.Time

	HasWorktree          bool
	WorktreeBranch       string
	WorktreeMainRepoPath string
	WorktreeManaged      bool

	HasSandbox           bool
	SandboxEnabled       bool
	SandboxContainerID   *string
	SandboxImage         *string
	SandboxContainerName string
	SandboxCreatedAt     *time.Time
	SandboxYoloMode      *bool
}

func (instanceRecord) TableName() string { return "instances" }

// NewSQLStore opens (and migrates) the database selected by cfg.Driver.
func NewSQLStore(cfg StoreConfig) (*SQLStore, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stderr, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = filepath.Join(cfg.ProfileDir(), sessionsDB)
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(path), gormConfig)
		if err == nil {
			db.Exec("PRAGMA journal_mode=WAL")
			db.Exec("PRAGMA busy_timeout = 5000")
		}
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	if err := db.AutoMigrate(&instanceRecord{}); err != nil {
		return nil, fmt.Errorf("migrating session database: %w", err)
	}

	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	return &SQLStore{db: db, profile: profile}, nil
}

func (s *SQLStore) Load() ([]*Instance, error) {
	var records []instanceRecord
	if err := s.db.Where("profile = ?", s.profile).Order("position").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	instances := make([]*Instance, 0, len(records))
	for i := range records {
		instances = append(instances, records[i].instance())
	}
	return instances, nil
}

// Save replaces the profile's rows with instances in one transaction.
func (s *SQLStore) Save(instances []*Instance) error {
	records := make([]instanceRecord, 0, len(instances))
	for i, inst := range instances {
		records = append(records, newRecord(s.profile, i, inst))
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile = ?", s.profile).Delete(&instanceRecord{}).Error; err != nil {
			return fmt.Errorf("saving sessions: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("saving sessions: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newRecord(profile string, position int, inst *Instance) instanceRecord {
	r := instanceRecord{
		Profile:     profile,
		ID:          inst.ID,
		Position:    position,
		Title:       inst.Title,
		ProjectPath: inst.ProjectPath,
		GroupPath:   inst.GroupPath,
		Tool:        inst.Tool,
		Created:     inst.CreatedAt,
	}
	if wt := inst.Worktree; wt != nil {
		r.HasWorktree = true
		r.WorktreeBranch = wt.Branch
		r.WorktreeMainRepoPath = wt.MainRepoPath
		r.WorktreeManaged = wt.ManagedByAOE
	}
	if sb := inst.Sandbox; sb != nil {
		r.HasSandbox = true
		r.SandboxEnabled = sb.Enabled
		r.SandboxContainerID = sb.ContainerID
		r.SandboxImage = sb.Image
		r.SandboxContainerName = sb.ContainerName
		r.SandboxCreatedAt = sb.CreatedAt
		r.SandboxYoloMode = sb.YoloMode
	}
	return r
}

func (r *instanceRecord) instance() *Instance {
	inst := &Instance{
		ID:          r.ID,
		Title:       r.Title,
		ProjectPath: r.ProjectPath,
		GroupPath:   r.GroupPath,
		Tool:        r.Tool,
		CreatedAt:   r.Created,
	}
	if r.HasWorktree {
		inst.Worktree = &WorktreeInfo{
			Branch:       r.WorktreeBranch,
			MainRepoPath: r.WorktreeMainRepoPath,
			ManagedByAOE: r.WorktreeManaged,
		}
	}
	if r.HasSandbox {
		inst.Sandbox = &SandboxInfo{
			Enabled:       r.SandboxEnabled,
			ContainerID:   r.SandboxContainerID,
			Image:         r.SandboxImage,
			ContainerName: r.SandboxContainerName,
			CreatedAt:     r.SandboxCreatedAt,
			YoloMode:      r.SandboxYoloMode,
		}
	}
	return inst
}
