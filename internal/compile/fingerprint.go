package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/treeline-data/treeline/internal/model"
)

// Fingerprint computes a stable hash over a validated model. Nodes and
// groups are already sorted by the validator and encoding/json emits map
// keys in sorted order, so byte-identical input always hashes identically,
// across calls and across machines. Callers use it to detect "nothing
// changed, skip redeploy".
func Fingerprint(vm *model.ValidatedModel) (string, error) {
	canonical := struct {
		Project  string                `json:"project"`
		Nodes    []model.HierarchyNode `json:"nodes"`
		Groups   []model.FilterGroup   `json:"groups"`
		Variance *model.VarianceConfig `json:"variance,omitempty"`
	}{
		Project:  vm.Project,
		Nodes:    vm.Nodes,
		Groups:   vm.Groups,
		Variance: vm.Variance,
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode model for fingerprinting: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
