package model

import (
	"time"
)

// Category is one node of the catalog forest. ParentID nil marks a root.
type Category struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"size:120;not null;index" json:"name"`
	Slug        string    `gorm:"size:140;uniqueIndex;not null" json:"slug"`
	ParentID    *uint     `gorm:"index" json:"parent_id"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// CategoryNode is a Category with its resolved children. Children is never nil.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func (n *CategoryNode) Count() int {
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}
