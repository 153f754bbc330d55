package workflow

import (
	"errors"
	"fmt"

	"github.com/nytimes/s3yum/internal/config"
)

// ErrAborted is returned when the operator declines a delete.
var ErrAborted = errors.New("delete aborted")

// ServiceError is a failure of a workflow step after validation passed.
// Remote changes made by earlier steps are not rolled back.
type ServiceError struct {
	Step string
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Step, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func serviceError(step string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Step: step, Err: err}
}

// Kind classifies a Run error.
type Kind int

const (
	KindNone Kind = iota
	KindUsage
	KindService
	KindAborted
	KindUnclassified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUsage:
		return "usage"
	case KindService:
		return "service"
	case KindAborted:
		return "aborted"
	default:
		return "unclassified"
	}
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var usage *config.UsageError
	if errors.As(err, &usage) {
		return KindUsage
	}
	if errors.Is(err, ErrAborted) {
		return KindAborted
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return KindService
	}
	return KindUnclassified
}
