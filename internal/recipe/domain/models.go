package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RecipeLine is one ingredient of a sellable target (a menu product).
// Base lines have no modifier key; modifier lines belong to a named
// modifier group and only contribute cost when the group is selected.
type RecipeLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index:idx_recipe_lines_target,priority:1" json:"org_id"`
	TargetID    snowflake.ID    `gorm:"not null;index:idx_recipe_lines_target,priority:2" json:"target_id"`
	ItemID      snowflake.ID    `gorm:"not null" json:"item_id"`
	QtyPerUnit  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_per_unit"`
	ModifierKey *string         `gorm:"type:text" json:"modifier_key,omitempty"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (RecipeLine) TableName() string { return "recipe_lines" }

// IsModifier reports whether the line belongs to a modifier group.
func (l RecipeLine) IsModifier() bool {
	return l.ModifierKey != nil && *l.ModifierKey != ""
}

// Repository is the read-only bill-of-materials provider.
type Repository interface {
	GetLines(ctx context.Context, orgID, targetID snowflake.ID) ([]RecipeLine, error)
}

var ErrInvalidTarget = errors.New("invalid_target")
