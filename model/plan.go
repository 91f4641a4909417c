package model

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is a saved battle tree.
type Plan struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Name          string         `gorm:"size:128;not null" json:"name"`
	Generation    int            `gorm:"not null;default:9" json:"generation"`
	Version       int            `gorm:"not null" json:"version"`
	NodeCount     int            `json:"node_count"`
	SourceSession string         `gorm:"size:36" json:"source_session,omitempty"`
	Tree          datatypes.JSON `json:"tree"`
	CreatedAt     time.Time      `gorm:"index:idx_plan_created" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }
