package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"wisefido-iop/internal/models"
)

// MemoryPatientsRepo 未启用数据库时的患者目录
type MemoryPatientsRepo struct {
	mu       sync.RWMutex
	patients map[string]models.Patient // id -> Patient
}

// NewMemoryPatientsRepo 使用给定患者初始化；patients 为空时使用内置演示数据
func NewMemoryPatientsRepo(patients ...models.Patient) *MemoryPatientsRepo {
	if len(patients) == 0 {
		patients = DemoPatients()
	}
	r := &MemoryPatientsRepo{patients: make(map[string]models.Patient, len(patients))}
	for _, p := range patients {
		r.patients[p.ID] = p
	}
	return r
}

var _ PatientDirectory = (*MemoryPatientsRepo)(nil)

// DemoPatients 演示患者
func DemoPatients() []models.Patient {
	return []models.Patient{
		{ID: "1", DisplayID: "P001", Name: "Rajendra Kapoor", Age: 65, Gender: "male"},
		{ID: "2", DisplayID: "P002", Name: "Sundar Ramaswamy", Age: 67, Gender: "male"},
		{ID: "3", DisplayID: "P003", Name: "Vimala Deshmukh", Age: 72, Gender: "female"},
		{ID: "4", DisplayID: "P004", Name: "Mohanlal Joshi", Age: 66, Gender: "male"},
		{ID: "5", DisplayID: "P005", Name: "Suresh Sharma", Age: 70, Gender: "male"},
	}
}

func (r *MemoryPatientsRepo) List(_ context.Context, search string) ([]models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.DisplayID), term) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayID < out[j].DisplayID
	})
	return out, nil
}

func (r *MemoryPatientsRepo) Get(_ context.Context, id string) (*models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return &p, nil
}
