// Package sandbox confines UDF workers with seccomp filters and supervises
// their filesystem access through user notifications.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Policy lists the filesystem paths a confined UDF may open read-only.
// Entries containing glob metacharacters are expanded at install time.
type Policy struct {
	AllowedPaths []string `yaml:"allowed_paths"`
}

// DefaultPolicy permits name resolution configuration and nothing else.
func DefaultPolicy() Policy {
	return Policy{AllowedPaths: []string{"/etc/resolv.conf"}}
}

// LoadPolicy reads a policy file. A missing file yields the default policy.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return Policy{}, appErr.Wrapf(err, appErr.PolicyInvalid, "read policy %s: %v", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, appErr.Wrapf(err, appErr.PolicyInvalid, "parse policy %s: %v", path, err)
	}
	if len(p.AllowedPaths) == 0 {
		p = DefaultPolicy()
	}
	return p, nil
}

// SidecarPolicyPath derives the policy file location for a given data file.
func SidecarPolicyPath(dataPath string) string {
	return dataPath + ".udf-policy.yaml"
}

// Expand resolves glob entries against the current filesystem. Literal
// entries pass through verbatim even if they do not exist, so a UDF probing
// for an absent-but-allowed file sees ENOENT rather than a policy denial.
func (p Policy) Expand() []string {
	var expanded []string
	for _, entry := range p.AllowedPaths {
		if !strings.ContainsAny(entry, "*?[") {
			expanded = append(expanded, entry)
			continue
		}
		matches, err := filepath.Glob(entry)
		if err != nil || len(matches) == 0 {
			continue
		}
		expanded = append(expanded, matches...)
	}
	return expanded
}

// Allows reports whether the expanded path set contains path. Matching is
// exact: no prefix or directory containment semantics.
func Allows(expanded []string, path string) bool {
	for _, p := range expanded {
		if p == path {
			return true
		}
	}
	return false
}
