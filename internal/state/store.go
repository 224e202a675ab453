// Package state persists deployment history with database migrations.
package state

import "time"

// DeploymentStatus is the terminal status of one deployment attempt.
type DeploymentStatus string

const (
	StatusApplied DeploymentStatus = "applied"
	StatusSkipped DeploymentStatus = "skipped"
	StatusFailed  DeploymentStatus = "failed"
)

// Deployment is one recorded deployment attempt for a project.
type Deployment struct {
	ID          string
	Project     string
	Dialect     string
	Target      string
	Fingerprint string
	Artifacts   int
	Status      DeploymentStatus
	Error       string
	CreatedAt   time.Time
}

// Store is the deployment history interface.
type Store interface {
	// RecordDeployment inserts a deployment record and fills in its ID and
	// creation time.
	RecordDeployment(d *Deployment) error
	// ListDeployments returns the most recent deployments for a project,
	// newest first. A limit of 0 means no limit.
	ListDeployments(project string, limit int) ([]Deployment, error)
	// LatestFingerprint returns the fingerprint of the most recent applied
	// deployment for a project/dialect/target triple, or "" when none exists.
	LatestFingerprint(project, dialect, target string) (string, error)
	Close() error
}
