package storage

import (
	"database/sql"
	"fmt"

	"github.com/kd17290/workflow-automation/internal/models"
)

// StorageType selects a backend implementation.
type StorageType string

const (
	TypeInMemory   StorageType = "in_memory"
	TypeFileSystem StorageType = "file_system"
	TypePostgres   StorageType = "postgres"
)

// Backends bundles one storage instance per entity type, all on the same
// backend.
type Backends struct {
	Workflows Storage[*models.WorkflowDefinition]
	Runs      Storage[*models.WorkflowRun]
}

func newWorkflow() *models.WorkflowDefinition { return &models.WorkflowDefinition{} }
func newRun() *models.WorkflowRun             { return &models.WorkflowRun{} }

// NewBackends builds the storage pair for the given type. dataDir is only
// used by the file backend, db only by the postgres backend.
func NewBackends(storageType StorageType, dataDir string, db *sql.DB) (*Backends, error) {
	switch storageType {
	case TypeInMemory:
		return &Backends{
			Workflows: NewInMemoryStorage(newWorkflow),
			Runs:      NewInMemoryStorage(newRun),
		}, nil
	case TypeFileSystem:
		workflows, err := NewFileStorage(dataDir, "workflowdefinitions", newWorkflow)
		if err != nil {
			return nil, err
		}
		runs, err := NewFileStorage(dataDir, "workflowruns", newRun)
		if err != nil {
			return nil, err
		}
		return &Backends{Workflows: workflows, Runs: runs}, nil
	case TypePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres storage requires a database connection")
		}
		return &Backends{
			Workflows: NewPostgresWorkflowStorage(db),
			Runs:      NewPostgresRunStorage(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}
