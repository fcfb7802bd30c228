package reconcile

import (
	"errors"
	"fmt"
)

// 错误分类。catalog 自身的失败 (网络、权限、配额) 不在这里，它们原样返回。
var (
	ErrStructuralConflict   = errors.New("structural conflict")
	ErrPolicyResolution     = errors.New("policy resolution failure")
	ErrConsistencyViolation = errors.New("consistency violation")
)

// ConflictError 目标路径的类型与期望不符 (例如把文件同步到 collection 上)
type ConflictError struct {
	Target string
	Path   string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("cannot sync %s to %s: %s", e.Path, e.Target, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrStructuralConflict }

// PolicyError 某个必须由 hook 提供的值缺失
type PolicyError struct {
	Probe  string
	Target string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s (%s) for %s", e.Reason, e.Probe, e.Target)
}

func (e *PolicyError) Is(target error) bool { return target == ErrPolicyResolution }

// ConsistencyError 物理路径与 catalog 中记录的 replica 不一致
type ConsistencyError struct {
	Target   string
	Path     string
	Resource string
}

func (e *ConsistencyError) Error() string {
	resc := e.Resource
	if resc == "" {
		resc = "<any>"
	}
	return fmt.Sprintf("wrong resource or path: target=%s path=%s resource=%s", e.Target, e.Path, resc)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistencyViolation }
