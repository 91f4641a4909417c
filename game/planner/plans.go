package planner

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kasuganosora/battleplanner/game/tree"
	"github.com/kasuganosora/battleplanner/model"
)

var (
	ErrPlanNotFound = errors.New("planner: plan not found")
	ErrPlanName     = errors.New("planner: plan name is required")
)

const maxPlanName = 128

// PlanService stores exported trees as named plans.
type PlanService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanService creates a PlanService.
func NewPlanService(db *gorm.DB, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{db: db, logger: logger}
}

// Save stores the session's current tree under name.
func (svc *PlanService) Save(ctx context.Context, name string, s *Session) (*model.Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPlanName
	}
	if len(name) > maxPlanName {
		name = name[:maxPlanName]
	}
	data, nodes, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	plan := &model.Plan{
		ID:            uuid.NewString(),
		Name:          name,
		Generation:    s.Generation(),
		Version:       tree.FormatVersion,
		NodeCount:     nodes,
		SourceSession: s.ID(),
		Tree:          datatypes.JSON(data),
	}
	if err := svc.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	svc.logger.Info("plan saved",
		zap.String("plan_id", plan.ID),
		zap.String("session_id", s.ID()),
		zap.Int("nodes", nodes))
	return plan, nil
}

// Get loads a plan with its tree.
func (svc *PlanService) Get(ctx context.Context, id string) (*model.Plan, error) {
	var plan model.Plan
	err := svc.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns every plan without its tree, newest first.
func (svc *PlanService) List(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	err := svc.db.WithContext(ctx).
		Omit("tree").
		Order("created_at DESC").
		Find(&plans).Error
	return plans, err
}

// Delete removes a plan.
func (svc *PlanService) Delete(ctx context.Context, id string) error {
	res := svc.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Plan{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// snapshot serialises the tree and counts its nodes under one lock.
func (s *Session) snapshot() ([]byte, int, error) {
	s.lock()
	defer s.mu.Unlock()
	data, err := s.tree.Serialize()
	return data, s.tree.Len(), err
}
