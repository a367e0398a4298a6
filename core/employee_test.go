package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindEmployeesRejectsBadColumn(t *testing.T) {
	_, err := FindEmployeesByBranch(nil, "employees", "branch_id; DROP TABLE x", "B1")
	assert.ErrorContains(t, err, "invalid branch column")
}

func TestFindEmployeesRejectsBadTable(t *testing.T) {
	_, err := FindEmployeesByBranch(nil, "hr.employees", "branch_id", "B1")
	assert.ErrorContains(t, err, "invalid employee table")
}
