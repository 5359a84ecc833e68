package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus enumerates the five states of the job lifecycle state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions mirrors the state table in §4.8 exactly.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusProcessing: true,
		JobStatusFailed:     true,
		JobStatusCancelled:  true,
	},
	JobStatusProcessing: {
		JobStatusPending:   true,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
	JobStatusFailed: {
		JobStatusPending: true,
	},
}

// CanTransition reports whether from -> to is a legal edge in the job state
// machine.
func CanTransition(from, to JobStatus) bool {
	return validTransitions[from][to]
}

// JobResult is the structured, nullable outcome of a completed job, stored
// alongside output asset ids and cached under the result-cache keyspace.
type JobResult struct {
	OutputPath string         `json:"output_path"`
	DurationS  float64        `json:"duration_s,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Value implements driver.Valuer so JobResult can be stored as JSONB.
func (r JobResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *JobResult) Scan(src any) error {
	if src == nil {
		*r = JobResult{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("models: JobResult.Scan: unsupported type %T", src)
	}
	return json.Unmarshal(b, r)
}

// Int64Slice adapts []int64 to a JSONB column, used for InputAssetIDs and
// OutputAssetIDs.
type Int64Slice []int64

func (s Int64Slice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]int64(s))
}

func (s *Int64Slice) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("models: Int64Slice.Scan: unsupported type %T", src)
	}
	return json.Unmarshal(b, (*[]int64)(s))
}

// Job represents one processing request and its progress through the state
// machine.
type Job struct {
	ID            int64      `db:"id" json:"id"`
	Type          JobType    `db:"type" json:"type"`
	Status        JobStatus  `db:"status" json:"status"`
	OwnerID       int64      `db:"owner_id" json:"owner_id"`
	InputAssetIDs Int64Slice `db:"input_asset_ids" json:"input_asset_ids"`
	OutputAssetIDs Int64Slice `db:"output_asset_ids" json:"output_asset_ids"`
	ConfigRaw     []byte     `db:"config" json:"-"`
	ErrorMessage  *string    `db:"error_message" json:"error_message,omitempty"`
	Progress      float64    `db:"progress" json:"progress"`
	Result        *JobResult `db:"result" json:"result,omitempty"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	Priority      int        `db:"priority" json:"priority"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Config decodes the job's stored configuration payload into its concrete
// tagged-union member.
func (j *Job) Config() (JobConfig, error) {
	if len(j.ConfigRaw) == 0 {
		return nil, fmt.Errorf("models: job %d has no config", j.ID)
	}
	return DecodeJobConfig(j.ConfigRaw)
}

// SetConfig encodes cfg into the job's stored configuration payload and
// stamps the discriminant type field to match.
func (j *Job) SetConfig(cfg JobConfig) error {
	b, err := EncodeJobConfig(cfg)
	if err != nil {
		return err
	}
	j.ConfigRaw = b
	j.Type = cfg.Type()
	return nil
}

const (
	DefaultPriority = 5
	MinPriority     = 1
	MaxPriority     = 10
	MaxAutoRetries  = 3
)
