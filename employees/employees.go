// Package employees reads the employee list the push workflow writes to
// a terminal. Lists come from CSV or spreadsheet exports (local or S3)
// or straight from the HR database.
package employees

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/config"
	"axiapac.com/devicesync/core"
	"axiapac.com/devicesync/infrastructure/filesystem"
	"axiapac.com/devicesync/utils"
	"github.com/xuri/excelize/v2"
)

// Source lists the employees of a branch.
type Source interface {
	Employees(ctx context.Context, branch string) ([]agent.Employee, error)
}

// Open picks the source named by the config.
func Open(cfg config.EmployeesConfig, debug bool) (Source, error) {
	switch {
	case cfg.Source == "":
		return nil, fmt.Errorf("%w: employees.source is not set", config.ErrInvalid)
	case cfg.Source == "mysql":
		return &DBSource{DSN: cfg.DSN, Table: cfg.Table, BranchColumn: cfg.BranchColumn, Debug: debug}, nil
	default:
		return &FileSource{Location: cfg.Source}, nil
	}
}

// FileSource reads a .csv or .xlsx file from disk or from s3://bucket/key.
type FileSource struct {
	Location string
}

func (f *FileSource) Employees(ctx context.Context, branch string) ([]agent.Employee, error) {
	var buf bytes.Buffer
	if bucket, key, ok := filesystem.ParseS3URL(f.Location); ok {
		if err := filesystem.ReadFile(ctx, bucket, key, &buf); err != nil {
			return nil, err
		}
	} else {
		file, err := os.Open(f.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", f.Location, err)
		}
		defer file.Close()
		if _, err := io.Copy(&buf, file); err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", f.Location, err)
		}
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(f.Location)) {
	case ".csv":
		rows, err = utils.ParseCSV(&buf)
	case ".xlsx", ".xlsm":
		rows, err = readSpreadsheet(&buf)
	default:
		return nil, fmt.Errorf("unsupported employee file %s, expected .csv or .xlsx", f.Location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.Location, err)
	}

	return FromRows(rows, branch)
}

// readSpreadsheet returns the rows of the first sheet.
func readSpreadsheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

var headerAliases = map[string]string{
	"id":             "id",
	"employee_id":    "id",
	"code":           "id",
	"name":           "name",
	"full_name":      "name",
	"branch":         "branch",
	"branch_id":      "branch",
	"native_user_id": "native",
	"device_user_id": "native",
	"user_id":        "native",
	"uid":            "native",
}

func normalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

type row struct {
	branch   string
	employee agent.Employee
}

// FromRows maps a header row plus data rows to employees. When the sheet
// has a branch column only rows of that branch are kept.
func FromRows(rows [][]string, branch string) ([]agent.Employee, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("employee list is empty")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		if key, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	for _, required := range []string{"id", "name"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("employee list has no %s column", required)
		}
	}

	cell := func(r []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(r) {
			return ""
		}
		return strings.TrimSpace(r[i])
	}

	var parsed []row
	for n, r := range rows[1:] {
		id := cell(r, "id")
		if id == "" {
			continue
		}
		name := cell(r, "name")
		if name == "" {
			return nil, fmt.Errorf("row %d: employee %s has no name", n+2, id)
		}
		parsed = append(parsed, row{
			branch:   cell(r, "branch"),
			employee: agent.Employee{ID: id, Name: name, NativeUserID: cell(r, "native")},
		})
	}

	if _, ok := cols["branch"]; ok {
		parsed = utils.GroupBy(parsed, func(r row) string { return r.branch })[branch]
	}

	return utils.Map(parsed, func(r row) agent.Employee { return r.employee }), nil
}

// DBSource queries the HR database.
type DBSource struct {
	DSN          string
	Table        string
	BranchColumn string
	Debug        bool
}

func (s *DBSource) Employees(ctx context.Context, branch string) ([]agent.Employee, error) {
	db, err := core.ConnectDB(s.DSN, s.Debug)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	rows, err := core.FindEmployeesByBranch(db.WithContext(ctx), s.Table, s.BranchColumn, branch)
	if err != nil {
		return nil, err
	}
	return utils.Map(rows, fromModel), nil
}

func fromModel(e core.Employee) agent.Employee {
	out := agent.Employee{ID: e.ID, Name: e.Name}
	if e.DeviceUserID != nil {
		out.NativeUserID = *e.DeviceUserID
	}
	return out
}
