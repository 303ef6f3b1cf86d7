package domain

import "context"

type Department struct {
	Code string `gorm:"primaryKey;size:40"`
	Name string `gorm:"size:140"`
}

type Stage struct {
	Code           string `gorm:"primaryKey;size:40"`
	Name           string `gorm:"size:140"`
	DepartmentCode string `gorm:"size:40;index"`
}

type Staff struct {
	ID          string   `gorm:"primaryKey;size:40"`
	Name        string   `gorm:"size:140"`
	Departments []string `gorm:"type:jsonb;serializer:json"`
}

// InDepartment reports whether the staff member belongs to the department.
func (s Staff) InDepartment(code string) bool {
	for _, d := range s.Departments {
		if d == code {
			return true
		}
	}
	return false
}

// Read-only lookup collaborators. Implementations hand out a consistent
// snapshot per request; nothing here is cached across render cycles.
type DepartmentDirectory interface {
	Department(code string) (Department, bool)
}

type StageDirectory interface {
	Stage(code string) (Stage, bool)
}

type StaffDirectory interface {
	Staff(id string) (Staff, bool)
	ByDepartment(code string) []Staff
}

// Directories bundles the three lookups the workflow tracker consumes.
type Directories interface {
	DepartmentDirectory
	StageDirectory
	StaffDirectory
}

// DirectorySource hands out a consistent directory snapshot per request.
type DirectorySource interface {
	Snapshot(ctx context.Context) (Directories, error)
}
