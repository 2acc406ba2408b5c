package models

import (
	"fmt"
	"strings"
)

type Skill string

const (
	SkillAttack  Skill = "ataque"
	SkillControl Skill = "control"
	SkillDefense Skill = "defensa"
)

// skillAliases maps accepted wire tokens to their canonical skill.
var skillAliases = map[string]Skill{
	"ataque":  SkillAttack,
	"medio":   SkillControl,
	"control": SkillControl,
	"defensa": SkillDefense,
}

// ParseSkill normalizes a client skill token. "medio" and "control" name the same stat.
func ParseSkill(s string) (Skill, error) {
	skill, ok := skillAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown skill %q", s)
	}
	return skill, nil
}

// Card is a card definition with its three stat attributes.
type Card struct {
	ID      string `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Name    string `json:"name" bson:"name" gorm:"not null"`
	Rarity  string `json:"rarity,omitempty" bson:"rarity,omitempty"`
	Attack  int    `json:"ataque" bson:"ataque" gorm:"column:ataque"`
	Control int    `json:"control" bson:"control" gorm:"column:control"`
	Defense int    `json:"defensa" bson:"defensa" gorm:"column:defensa"`
}

// Stat returns the card's value for the given skill.
func (c *Card) Stat(skill Skill) int {
	switch skill {
	case SkillAttack:
		return c.Attack
	case SkillControl:
		return c.Control
	case SkillDefense:
		return c.Defense
	}
	return 0
}

// CollectionEntry is one row of a user's card collection.
// A row never holds quantity 0; it is deleted instead.
type CollectionEntry struct {
	UserID   string `json:"userId" bson:"userId" gorm:"primaryKey;type:varchar(64)"`
	CardID   string `json:"cardId" bson:"cardId" gorm:"primaryKey;type:varchar(64)"`
	Quantity int    `json:"quantity" bson:"quantity" gorm:"not null;check:quantity > 0"`
}

func (CollectionEntry) TableName() string { return "user_cards" }

// LoadoutSlot places one owned card in a user's active loadout.
type LoadoutSlot struct {
	UserID string `json:"userId" bson:"userId" gorm:"primaryKey;type:varchar(64)"`
	Slot   int    `json:"slot" bson:"slot" gorm:"primaryKey"`
	CardID string `json:"cardId" bson:"cardId" gorm:"type:varchar(64);not null"`
}

func (LoadoutSlot) TableName() string { return "loadout_slots" }

// Offer is one side of a card exchange: the user gives up one copy of CardID.
type Offer struct {
	UserID string
	CardID string
}
