package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

type DirectoryRepo struct{ db *gorm.DB }

func NewDirectoryRepo(db *gorm.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

func (r *DirectoryRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Department{}, &domain.Stage{}, &domain.Staff{})
}

// Snapshot loads the three directories into memory for the duration of one
// request. Nothing is cached across calls.
func (r *DirectoryRepo) Snapshot(ctx context.Context) (domain.Directories, error) {
	var (
		departments []domain.Department
		stages      []domain.Stage
		staff       []domain.Staff
	)
	if err := r.db.WithContext(ctx).Find(&departments).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Find(&stages).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Find(&staff).Error; err != nil {
		return nil, err
	}

	snap := &dirSnapshot{
		departments: make(map[string]domain.Department, len(departments)),
		stages:      make(map[string]domain.Stage, len(stages)),
		staff:       make(map[string]domain.Staff, len(staff)),
		all:         staff,
	}
	for _, d := range departments {
		snap.departments[d.Code] = d
	}
	for _, s := range stages {
		snap.stages[s.Code] = s
	}
	for _, s := range staff {
		snap.staff[s.ID] = s
	}
	return snap, nil
}

// Seed inserts a minimal directory set on an empty database.
func (r *DirectoryRepo) Seed(ctx context.Context) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Department{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	departments := []domain.Department{
		{Code: "CLEAN", Name: "Cleaning"},
		{Code: "REPAIR", Name: "Repair"},
		{Code: "CUSTOM", Name: "Customization"},
		{Code: "FINISH", Name: "Finishing"},
	}
	stages := []domain.Stage{
		{Code: "CLEAN_DEEP", Name: "Deep clean", DepartmentCode: "CLEAN"},
		{Code: "CLEAN_SOLE", Name: "Sole whitening", DepartmentCode: "CLEAN"},
		{Code: "REPAIR_STITCH", Name: "Restitching", DepartmentCode: "REPAIR"},
		{Code: "REPAIR_SOLE", Name: "Sole swap", DepartmentCode: "REPAIR"},
		{Code: "CUSTOM_PAINT", Name: "Hand paint", DepartmentCode: "CUSTOM"},
		{Code: "CUSTOM_DYE", Name: "Dye", DepartmentCode: "CUSTOM"},
		{Code: "FINISH_COAT", Name: "Protective coat", DepartmentCode: "FINISH"},
		{Code: "FINISH_QC", Name: "Final check", DepartmentCode: "FINISH"},
	}
	for _, d := range departments {
		if err := r.db.WithContext(ctx).Create(&d).Error; err != nil {
			return err
		}
	}
	for _, s := range stages {
		if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
			return err
		}
	}
	staff := []domain.Staff{
		{ID: "st-linh", Name: "Linh", Departments: []string{"CLEAN", "FINISH"}},
		{ID: "st-duc", Name: "Duc", Departments: []string{"REPAIR"}},
		{ID: "st-mai", Name: "Mai", Departments: []string{"CUSTOM", "FINISH"}},
	}
	for _, s := range staff {
		if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
			return err
		}
	}
	return nil
}

type dirSnapshot struct {
	departments map[string]domain.Department
	stages      map[string]domain.Stage
	staff       map[string]domain.Staff
	all         []domain.Staff
}

func (d *dirSnapshot) Department(code string) (domain.Department, bool) {
	dep, ok := d.departments[code]
	return dep, ok
}

func (d *dirSnapshot) Stage(code string) (domain.Stage, bool) {
	st, ok := d.stages[code]
	return st, ok
}

func (d *dirSnapshot) Staff(id string) (domain.Staff, bool) {
	st, ok := d.staff[id]
	return st, ok
}

func (d *dirSnapshot) ByDepartment(code string) []domain.Staff {
	var out []domain.Staff
	for _, s := range d.all {
		if s.InDepartment(code) {
			out = append(out, s)
		}
	}
	return out
}
