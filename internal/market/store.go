package market

import (
	"errors"
	"sync"

	"github.com/glebarez/sqlite"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// Store persists marketplace entities in a transactional table. Every
// mutation of a single entity goes through a read-modify-write
// transaction serialized by a per-entity lock: of two concurrent updates
// to the same record, one runs first and the other validates its
// preconditions against the first's post-state. Whole-store
// load/mutate/save is never exposed.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// registerMu serializes node creation so the owner-address and
	// stake-proof uniqueness checks cannot race.
	registerMu sync.Mutex
}

func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, xerrors.Errorf("open store %s: %w", path, err)
	}

	// A single connection keeps sqlite transactions strictly serial.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Errorf("store connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Node{}, &models.Job{}, &models.SettlementReceipt{}); err != nil {
		return nil, xerrors.Errorf("migrate store: %w", err)
	}

	return &Store{db: db, locks: map[string]*sync.Mutex{}}, nil
}

func (s *Store) entityLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func mapNotFound(err error, reason string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotFoundError(reason)
	}
	return err
}

// --- Nodes ---

func (s *Store) GetNode(nodeId string) (*models.Node, error) {
	var node models.Node
	if err := s.db.First(&node, "node_id = ?", nodeId).Error; err != nil {
		return nil, mapNotFound(err, models.ReasonNodeNotFound)
	}
	return &node, nil
}

// ListNodes returns all nodes ordered by jobs completed, busiest first.
func (s *Store) ListNodes() ([]models.Node, error) {
	var nodes []models.Node
	if err := s.db.Order("jobs_completed desc").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// CreateNode registers a node after re-checking owner and stake-proof
// uniqueness under the registration lock. Two registrations racing with
// the same proof serialize here: exactly one wins.
func (s *Store) CreateNode(node *models.Node) error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Node{}).Where("owner_address = ?", node.OwnerAddress).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.ConflictError(models.ReasonOwnerRegistered)
		}
		if err := tx.Model(&models.Node{}).Where("stake_tx = ?", node.StakeTx).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.ConflictError(models.ReasonStakeTxUsed)
		}
		return tx.Create(node).Error
	})
}

// UpdateNode applies fn to the current snapshot of the node inside a
// transaction. fn returning an error aborts with no state change.
func (s *Store) UpdateNode(nodeId string, fn func(*models.Node) error) (*models.Node, error) {
	lock := s.entityLock("node:" + nodeId)
	lock.Lock()
	defer lock.Unlock()

	var node models.Node
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&node, "node_id = ?", nodeId).Error; err != nil {
			return mapNotFound(err, models.ReasonNodeNotFound)
		}
		if err := fn(&node); err != nil {
			return err
		}
		return tx.Save(&node).Error
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// --- Jobs ---

func (s *Store) GetJob(jobId string) (*models.Job, error) {
	var job models.Job
	if err := s.db.First(&job, "job_id = ?", jobId).Error; err != nil {
		return nil, mapNotFound(err, models.ReasonJobNotFound)
	}
	return &job, nil
}

func (s *Store) CreateJob(job *models.Job) error {
	return s.db.Create(job).Error
}

// ListJobsByStatus returns jobs in any of the given states, oldest
// first.
func (s *Store) ListJobsByStatus(statuses ...models.JobStatus) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.Where("status IN ?", statuses).Order("created_at asc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs() ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.Order("created_at desc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJob is the atomic read-modify-write primitive for job records.
// Claim arbitration rests on it: the loser of a race observes the
// winner's post-state and is rejected by its own preconditions.
func (s *Store) UpdateJob(jobId string, fn func(*models.Job) error) (*models.Job, error) {
	lock := s.entityLock("job:" + jobId)
	lock.Lock()
	defer lock.Unlock()

	var job models.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "job_id = ?", jobId).Error; err != nil {
			return mapNotFound(err, models.ReasonJobNotFound)
		}
		if err := fn(&job); err != nil {
			return err
		}
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// --- Settlement receipts ---

func (s *Store) GetReceiptByJob(jobId string) (*models.SettlementReceipt, error) {
	var receipt models.SettlementReceipt
	if err := s.db.First(&receipt, "job_id = ?", jobId).Error; err != nil {
		return nil, mapNotFound(err, models.ReasonReceiptNotFound)
	}
	return &receipt, nil
}

func (s *Store) CreateReceipt(receipt *models.SettlementReceipt) error {
	return s.db.Create(receipt).Error
}

// SaveReceipt persists changes to an existing receipt. Callers serialize
// through the settlement entity lock, like CreateReceipt.
func (s *Store) SaveReceipt(receipt *models.SettlementReceipt) error {
	return s.db.Save(receipt).Error
}
