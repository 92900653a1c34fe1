package expressions

import "github.com/flowcore/flowexpr/pkg/pool"

// RegisterDefaults wires the sequence/concurrence/wait/cursor kinds under their
// conventional tree names into p, matching the teacher's builder-style
// convenience of pre-wiring common steps (builder.go). Commands are
// registered separately per tree name via NewCommandFactory, since each
// one runs a distinct CommandFunc.
func RegisterDefaults(p *pool.Pool) {
	p.RegisterKind("sequence", NewSequenceFactory())
	p.RegisterKind("concurrence", NewConcurrenceFactory())
	p.RegisterKind("wait", NewWaitFactory())
	p.RegisterKind("cursor", NewCursorFactory())
}
