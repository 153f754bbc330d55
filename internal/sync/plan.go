package sync

import "log/slog"

// OpKind is the kind of a planned store operation.
type OpKind string

const (
	OpPut    OpKind = "put"
	OpDelete OpKind = "delete"
	OpSkip   OpKind = "skip"
)

// Op is one store mutation performed, or in dry-run intended, by a run.
// Skip ops record upload decisions that left the store untouched.
type Op struct {
	Kind      OpKind
	Key       string
	LocalPath string // source file for puts and skips
	Reason    string
}

// Plan is the ordered record of a run's store mutations.
type Plan struct {
	Ops []Op
}

func (p *Plan) add(op Op) {
	p.Ops = append(p.Ops, op)
}

// Puts returns the keys written, in order.
func (p *Plan) Puts() []string {
	return p.keys(OpPut)
}

// Deletes returns the keys removed, in order.
func (p *Plan) Deletes() []string {
	return p.keys(OpDelete)
}

// Skips returns the keys left alone, in order.
func (p *Plan) Skips() []string {
	return p.keys(OpSkip)
}

func (p *Plan) keys(kind OpKind) []string {
	var out []string
	for _, op := range p.Ops {
		if op.Kind == kind {
			out = append(out, op.Key)
		}
	}
	return out
}

// LogDetails logs each mutation of a dry-run plan.
func (p *Plan) LogDetails(logger *slog.Logger) {
	for _, op := range p.Ops {
		switch op.Kind {
		case OpPut:
			logger.Info("[dry-run] would upload", "key", op.Key, "source", op.LocalPath, "reason", op.Reason)
		case OpDelete:
			logger.Info("[dry-run] would delete", "key", op.Key)
		case OpSkip:
			logger.Debug("[dry-run] would skip", "key", op.Key, "reason", op.Reason)
		}
	}
}
