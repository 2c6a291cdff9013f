package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ComplexityStep is one (job count, memory) pair of a workflow's
// complexity estimate.
type ComplexityStep struct {
	Jobs   int64 `json:"jobs"`
	Memory int64 `json:"memory"`
}

// ComplexitySteps is the ordered complexity estimate of a workflow,
// stored as a JSON column.
type ComplexitySteps []ComplexityStep

func (c ComplexitySteps) Value() (driver.Value, error) {
	if c == nil {
		c = ComplexitySteps{}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (c *ComplexitySteps) Scan(value interface{}) error {
	if value == nil {
		*c = ComplexitySteps{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported complexity column type %T", value)
	}
	if len(raw) == 0 {
		*c = ComplexitySteps{}
		return nil
	}
	return json.Unmarshal(raw, c)
}

// RequiredMemory is the total memory the workflow needs to schedule all
// of its jobs at once.
func (c ComplexitySteps) RequiredMemory() int64 {
	var total int64
	for _, step := range c {
		total += step.Jobs * step.Memory
	}
	return total
}

// Workflow is one execution attempt of a named workflow.
type Workflow struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string          `gorm:"column:name;size:255;not null;uniqueIndex:workflow_owner_run_idx,priority:2" json:"name"`
	OwnerID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:workflow_owner_run_idx,priority:1;index" json:"owner_id"`
	Status             RunStatus       `gorm:"column:status;size:30;not null;default:created;index" json:"status"`
	Specification      datatypes.JSON  `gorm:"column:specification" json:"specification,omitempty"`
	InputParameters    datatypes.JSON  `gorm:"column:input_parameters" json:"input_parameters,omitempty"`
	OperationalOptions datatypes.JSON  `gorm:"column:operational_options" json:"operational_options,omitempty"`
	Complexity         ComplexitySteps `gorm:"column:complexity;type:text" json:"complexity"`
	Type               string          `gorm:"column:type;size:30" json:"type"`
	Logs               string          `gorm:"column:logs;type:text" json:"logs,omitempty"`
	RunStartedAt       *time.Time      `gorm:"column:run_started_at" json:"run_started_at,omitempty"`
	RunFinishedAt      *time.Time      `gorm:"column:run_finished_at" json:"run_finished_at,omitempty"`
	RunStoppedAt       *time.Time      `gorm:"column:run_stopped_at" json:"run_stopped_at,omitempty"`
	RunNumberMajor     int             `gorm:"column:run_number_major;not null;uniqueIndex:workflow_owner_run_idx,priority:3" json:"run_number_major"`
	RunNumberMinor     int             `gorm:"column:run_number_minor;not null;default:0;uniqueIndex:workflow_owner_run_idx,priority:4" json:"run_number_minor"`
	Restart            bool            `gorm:"column:restart;not null;default:false" json:"restart"`
	JobProgress        datatypes.JSON  `gorm:"column:job_progress" json:"job_progress,omitempty"`
	WorkspacePath      string          `gorm:"column:workspace_path;size:1024;index" json:"workspace_path"`
	GitRef             string          `gorm:"column:git_ref;size:40" json:"git_ref,omitempty"`
	GitRepo            string          `gorm:"column:git_repo;size:255" json:"git_repo,omitempty"`
	GitProvider        string          `gorm:"column:git_provider;size:255" json:"git_provider,omitempty"`
	LauncherURL        string          `gorm:"column:launcher_url;size:1024" json:"launcher_url,omitempty"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

func (Workflow) TableName() string { return "workflow" }

// RunNumber renders the major.minor pair, omitting ".0" for
// non-restarts ("3", "3.2").
func (w *Workflow) RunNumber() string {
	return FormatRunNumber(w.RunNumberMajor, w.RunNumberMinor)
}

// FullName is the workflow name qualified with its run number.
func (w *Workflow) FullName() string {
	return fmt.Sprintf("%s.%s", w.Name, w.RunNumber())
}

// SpecificationDoc decodes the stored workflow specification. An
// empty column decodes to an empty document.
func (w *Workflow) SpecificationDoc() (map[string]interface{}, error) {
	if len(w.Specification) == 0 {
		return map[string]interface{}{}, nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(w.Specification, &doc); err != nil {
		return nil, fmt.Errorf("decode specification of workflow %s: %w", w.ID, err)
	}
	return doc, nil
}

// InputParameterValues returns the specification's declared input
// parameters overlaid with the parameters this run was started with.
func (w *Workflow) InputParameterValues() (map[string]interface{}, error) {
	spec, err := w.SpecificationDoc()
	if err != nil {
		return nil, err
	}
	params := map[string]interface{}{}
	if inputs, ok := spec["inputs"].(map[string]interface{}); ok {
		if declared, ok := inputs["parameters"].(map[string]interface{}); ok {
			for k, v := range declared {
				params[k] = v
			}
		}
	}
	if len(w.InputParameters) > 0 {
		var overrides map[string]interface{}
		if err := json.Unmarshal(w.InputParameters, &overrides); err != nil {
			return nil, fmt.Errorf("decode input parameters of workflow %s: %w", w.ID, err)
		}
		for k, v := range overrides {
			params[k] = v
		}
	}
	return params, nil
}

// FormatRunNumber renders a (major, minor) run number pair.
func FormatRunNumber(major, minor int) string {
	if minor == 0 {
		return fmt.Sprintf("%d", major)
	}
	return fmt.Sprintf("%d.%d", major, minor)
}

// WorkflowSession links an interactive session to an optional owning
// workflow. A session may exist independent of any workflow.
type WorkflowSession struct {
	SessionID  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"session_id"`
	WorkflowID *uuid.UUID `gorm:"type:uuid;index" json:"workflow_id,omitempty"`
}

func (WorkflowSession) TableName() string { return "workflow_session" }
