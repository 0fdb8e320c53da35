package db

import (
	"gorm.io/gorm"
)

// Pagination is the window applied to audit-log list queries.
type Pagination struct {
	Limit  int
	Offset int
	Sort   string
}

func (p *Pagination) GetOffset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

func (p *Pagination) GetLimit() int {
	return p.Limit
}

func (p *Pagination) GetSort() string {
	if p.Sort == "" {
		p.Sort = "create_time DESC"
	}
	return p.Sort
}

// Paginate returns a gorm scope applying the pagination window.
func Paginate(pagination *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(pagination.GetOffset()).Limit(pagination.GetLimit()).Order(pagination.GetSort())
	}
}
