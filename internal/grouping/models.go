package grouping

import (
	"fmt"
	"time"

	"wikiseed/internal/services"
)

// Verification describes the checksum state of a resource.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
	VerificationVerified   Verification = "verified"
	VerificationMismatch   Verification = "mismatch"
)

// BuildStatus describes whether a bundle's membership is still open.
type BuildStatus string

const (
	BuildOpen  BuildStatus = "open"
	BuildBuilt BuildStatus = "built"
)

// Resource is one stored file.
type Resource struct {
	ID                 int64        `json:"id"`
	GroupingKey        string       `json:"grouping_key"`
	Path               string       `json:"path"`
	SizeBytes          int64        `json:"size_bytes"`
	MD5                string       `json:"md5,omitempty"`
	SHA1               string       `json:"sha1,omitempty"`
	VerificationStatus Verification `json:"verification_status"`
	RefCount           int          `json:"ref_count"`
	AccessPriority     int          `json:"access_priority"`
	CreatedAt          time.Time    `json:"created_at"`
	LastAccessedAt     *time.Time   `json:"last_accessed_at,omitempty"`
}

// NewResource describes a resource to register.
type NewResource struct {
	GroupingKey        string
	Path               string
	SizeBytes          int64
	MD5                string
	SHA1               string
	VerificationStatus Verification
	AccessPriority     int
}

// Bundle is a named collection of hard-linked resources.
type Bundle struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Classification string      `json:"classification,omitempty"`
	BuildStatus    BuildStatus `json:"build_status"`
	ArtifactPath   string      `json:"artifact_path,omitempty"`
	MemberCount    int         `json:"member_count"`
	CreatedAt      time.Time   `json:"created_at"`
	BuiltAt        *time.Time  `json:"built_at,omitempty"`
}

// Filter narrows Resources results.
type Filter struct {
	GroupingKey  string
	Unreferenced bool
	Limit        int
}

var (
	// ErrResourceNotFound is returned when no resource has the requested id.
	ErrResourceNotFound = fmt.Errorf("resource not found: %w", services.ErrNotFound)
	// ErrBundleNotFound is returned when no bundle has the requested id.
	ErrBundleNotFound = fmt.Errorf("bundle not found: %w", services.ErrNotFound)
	// ErrResourceInUse is returned when deleting a referenced resource or the
	// sole copy of its grouping key.
	ErrResourceInUse = fmt.Errorf("resource in use: %w", services.ErrInvariantViolation)
	// ErrBundleSealed is returned when changing membership of a built bundle.
	ErrBundleSealed = fmt.Errorf("bundle sealed: %w", services.ErrInvariantViolation)
	// ErrInvalidResource is returned for malformed registration requests.
	ErrInvalidResource = fmt.Errorf("invalid resource: %w", services.ErrValidation)
)
