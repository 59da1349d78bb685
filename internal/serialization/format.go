package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "BORN"
	FormatVersion   = 2
	FixedHeaderSize = 64
	HeaderAlignment = 64
	ChecksumOffset  = 0x20
	ChecksumSize    = 32
)

// Producer is recorded in every header written by this package.
const Producer = "vit 0.1.0"

// Flags stored in the fixed header.
const (
	FlagHasOptimizer uint32 = 1 << 1
	FlagHasMetadata  uint32 = 1 << 2
)

// Header is the JSON section of a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Producer      string            `json:"producer"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`

	// Config is the model configuration as JSON, if the caller stored one.
	Config json.RawMessage `json:"config,omitempty"`

	Checkpoint *CheckpointMeta `json:"checkpoint,omitempty"`
}

// CheckpointMeta records training progress alongside the weights.
type CheckpointMeta struct {
	Epoch           int                `json:"epoch"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	Accuracy        float64            `json:"accuracy"`
	RunID           string             `json:"run_id"`
	OptimizerType   string             `json:"optimizer_type,omitempty"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
	SchedulerType   string             `json:"scheduler_type,omitempty"`
	SchedulerState  map[string]float64 `json:"scheduler_state,omitempty"`
}

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

// dataOffset returns where tensor data starts for a JSON header of n bytes.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
