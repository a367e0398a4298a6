package core

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Employee is a row of the HR employee table the push workflow reads.
type Employee struct {
	ID           string  `gorm:"column:id;primaryKey"`
	Name         string  `gorm:"column:name"`
	BranchID     string  `gorm:"column:branch_id;index"`
	DeviceUserID *string `gorm:"column:device_user_id"`
	Active       bool    `gorm:"column:active;default:true"`
}

func (Employee) TableName() string {
	return "employees"
}

// FindEmployeesByBranch returns the active employees of a branch, ordered
// by id so repeated pushes write in the same order.
func FindEmployeesByBranch(db *gorm.DB, table, branchColumn, branch string) ([]Employee, error) {
	if !identifier.MatchString(branchColumn) {
		return nil, fmt.Errorf("invalid branch column %q", branchColumn)
	}
	if table != "" && !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid employee table %q", table)
	}

	var rows []Employee
	q := db.Model(&Employee{})
	if table != "" {
		q = db.Table(table)
	}
	err := q.Where(fmt.Sprintf("`%s` = ?", branchColumn), branch).
		Where("active = ?", true).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch employees for branch %s: %w", branch, err)
	}
	return rows, nil
}
