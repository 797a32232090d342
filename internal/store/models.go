package store

import "time"

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusConcluded ExperimentStatus = "concluded"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s ExperimentStatus) bool {
	switch s {
	case StatusDraft, StatusRunning, StatusConcluded:
		return true
	}
	return false
}

type Experiment struct {
	ID             string
	Name           string
	Description    string
	Variants       []string       // Decoded from JSON, ordered, distinct
	TrafficSplit   map[string]int // variant -> percentage, sums to 100
	Status         ExperimentStatus
	WinningVariant *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasVariant reports whether name is one of the experiment's declared
// variants.
func (e *Experiment) HasVariant(name string) bool {
	for _, v := range e.Variants {
		if v == name {
			return true
		}
	}
	return false
}

type AssignmentSource string

const (
	SourceCalculated AssignmentSource = "calculated"
	SourceForced     AssignmentSource = "forced"
	SourceRemote     AssignmentSource = "remote"
	SourceLocalCache AssignmentSource = "localCache"
)

type VariantAssignment struct {
	UserID         string
	ExperimentID   string
	ExperimentName string
	Variant        string
	Bucket         *int // nil for forced assignments, where no bucket applies
	Source         AssignmentSource
	AssignedAt     time.Time
}

type Purchase struct {
	ID          int64
	UserID      string
	AmountCents int64
	CreatedAt   time.Time
}
