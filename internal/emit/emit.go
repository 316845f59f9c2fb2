// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package emit

import (
	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/executor"
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/ledger"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/shadow"
	"github.com/herbgrind/shadowvm/internal/state"
	"github.com/herbgrind/shadowvm/internal/typetrack"
)

// Emitter is the InstrumentationEmitter: given a basic block of host IR
// and a Host to ask for concrete values, it drives the shadow state,
// static type tracker, ownership ledger, and op executor exactly as spec
// §4.5's table prescribes, one statement at a time. Because this tool has
// no separate code-generation target (there is no second run where the
// "emitted" instrumentation executes later against a real process), the
// emitter and the runtime helpers it would otherwise emit calls to are
// fused: ProcessBlock performs the shadow action immediately rather than
// generating code that performs it. The static tracker is still consulted
// and kept up to date exactly per the table, even though nothing here
// skips work based on its answers -- that optimisation only pays off when
// there is a second, separate execution of emitted code, which does not
// exist in this model (see DESIGN.md).
type Emitter struct {
	State   *state.State
	Tracker *typetrack.Tracker
	Exec    *executor.Executor
	Cfg     config.Config
}

// New returns an Emitter wired to the given collaborators.
func New(st *state.State, tracker *typetrack.Tracker, exec *executor.Executor, cfg config.Config) *Emitter {
	return &Emitter{State: st, Tracker: tracker, Exec: exec, Cfg: cfg}
}

// ProcessBlock havocs the static tracker (block-entry join is havoc, spec
// §4.4), runs every statement in block against host, and tears down the
// block's ownership ledger at exit (spec §4.6).
func (em *Emitter) ProcessBlock(block irstmt.BasicBlock, host Host) {
	em.Tracker.Reset()
	l := ledger.New()
	for _, stmt := range block.Stmts {
		em.processStmt(block.Addr, stmt, host, l)
	}
	l.Teardown(em.State)
}

func (em *Emitter) processStmt(blockAddr uint64, stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	switch stmt.Kind {
	case irstmt.KindRdTmp:
		em.rdTmp(stmt, l)
	case irstmt.KindWrConst:
		em.wrConst(stmt)
	case irstmt.KindITE:
		em.ite(stmt, host, l)
	case irstmt.KindPut:
		em.put(stmt)
	case irstmt.KindPutI:
		em.putI(stmt, host)
	case irstmt.KindGet:
		em.get(stmt, host, l)
	case irstmt.KindGetI:
		em.getI(stmt, host, l)
	case irstmt.KindLoad:
		em.load(stmt, host, l)
	case irstmt.KindLoadG:
		em.loadG(stmt, host, l)
	case irstmt.KindStore:
		em.store(stmt, host)
	case irstmt.KindStoreG:
		em.storeG(stmt, host)
	case irstmt.KindCAS:
		em.cas(stmt)
	case irstmt.KindOp:
		em.op(blockAddr, stmt, host, l)
	}
}

// rdTmp: t2 = RdTmp t1. Copies the shadow-temp pointer with a ref-count
// increment, and propagates t1's static type verbatim.
func (em *Emitter) rdTmp(stmt irstmt.Stmt, l *ledger.Ledger) {
	srcTy := em.Tracker.TempType(stmt.Src.Temp)
	em.Tracker.SetTempType(stmt.Dst, srcTy)

	em.State.ClearTemp(stmt.Dst)
	if src := em.State.LoadTemp(stmt.Src.Temp); src != nil {
		em.State.StoreTemp(stmt.Dst, shadow.CopyTemp(src))
		l.Register(stmt.Dst)
	}
}

// wrConst: t = Const c. Statically NonFloat; no shadow.
func (em *Emitter) wrConst(stmt irstmt.Stmt) {
	em.Tracker.SetTempType(stmt.Dst, fttype.NonFloat)
	em.State.ClearTemp(stmt.Dst)
}

// ite: t = ITE(c, a, b). Selects a shadow at runtime; propagates the
// common static type only when both branches agree on one.
func (em *Emitter) ite(stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	aTy := em.operandType(stmt.A)
	bTy := em.operandType(stmt.B)
	resultTy := fttype.Unknown
	if aTy == bTy && aTy.HasStaticShadow() {
		resultTy = aTy
	}
	em.Tracker.SetTempType(stmt.Dst, resultTy)

	chosen := stmt.A
	if !guardTrue(stmt.Cond, host) {
		chosen = stmt.B
	}
	laneTy, _, _ := lanesOf(stmt.Type)
	val := em.resolveOperand(chosen, host, laneTy)

	em.State.ClearTemp(stmt.Dst)
	temp := shadow.NewTemp(1)
	temp.Values[0] = val
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
}

// operandType reports the best static classification of an ITE/Op operand
// expr: NonFloat if it isn't even float-typed, Unshadowed for a literal
// (constants never carry a shadow), or the tracker's live entry for a
// referenced temp.
func (em *Emitter) operandType(e irstmt.Expr) fttype.FloatType {
	if !e.Type.IsFloat() {
		return fttype.NonFloat
	}
	if e.IsConst {
		return fttype.Unshadowed
	}
	return em.Tracker.TempType(e.Temp)
}

// resolveOperand returns an owned shadow Value for operand e at width ty,
// synthesising one from e's concrete bits if e has no live shadow.
func (em *Emitter) resolveOperand(e irstmt.Expr, host Host, ty fttype.FloatType) *shadow.Value {
	if !e.IsConst {
		if t := em.State.LoadTemp(e.Temp); t != nil && len(t.Values) > 0 && t.Values[0] != nil {
			shadow.Own(t.Values[0])
			return t.Values[0]
		}
	}
	return shadow.Widen(ty, concreteFloat(e, host), !em.Cfg.NoExprs)
}

// put: Put off <- e. Disowns whatever currently occupies the destination
// lanes, then writes e's shadow lane-wise if it has one.
func (em *Emitter) put(stmt irstmt.Stmt) {
	laneTy, n, stride := lanesOf(stmt.Type)
	if n == 0 {
		return
	}
	src := em.State.LoadTemp(stmt.Src.Temp)
	for i := 0; i < n; i++ {
		off := stmt.PutOffset + i*stride
		if !stmt.Src.IsConst && src != nil && i < len(src.Values) && src.Values[i] != nil {
			shadow.Own(src.Values[i])
			em.State.SetTS(off, src.Values[i])
			em.Tracker.SetTSType(off, laneTy)
		} else {
			em.State.SetTS(off, nil)
			if stmt.Src.IsConst {
				em.Tracker.SetTSType(off, fttype.Unshadowed)
			} else {
				em.Tracker.SetTSType(off, fttype.Unknown)
			}
		}
	}
}

// putI: array-relative Put at a dynamically computed offset. When writing
// a double, the second (high) word of the pair stays NonFloat -- VEX's
// guest-state arrays address doubles as two consecutive 32-bit slots, and
// the shadow only ever attaches to the first.
func (em *Emitter) putI(stmt irstmt.Stmt, host Host) {
	idx := int(rawBitsOf(stmt.Ix, host)) % maxInt(stmt.IxLen, 1)
	off := stmt.IxBase + idx*stmt.IxElemSize

	laneTy, _, _ := lanesOf(stmt.Type)
	src := em.State.LoadTemp(stmt.Src.Temp)
	if !stmt.Src.IsConst && src != nil && len(src.Values) > 0 && src.Values[0] != nil {
		shadow.Own(src.Values[0])
		em.State.SetTS(off, src.Values[0])
		em.Tracker.SetTSType(off, laneTy)
	} else {
		em.State.SetTS(off, nil)
		em.Tracker.SetTSType(off, fttype.Unshadowed)
	}
	if stmt.Type == irstmt.TyF64 {
		em.State.SetTS(off+4, nil)
		em.Tracker.SetTSType(off+4, fttype.NonFloat)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// get: t = Get off. Builds the result temp directly from whatever mix of
// live shadows and unshadowed slots currently occupies those lanes,
// synthesising fresh shadows for the gaps.
func (em *Emitter) get(stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	laneTy, n, stride := lanesOf(stmt.Type)
	if n == 0 {
		em.Tracker.SetTempType(stmt.Dst, fttype.NonFloat)
		em.State.ClearTemp(stmt.Dst)
		return
	}
	off := int(stmt.Src.Const)
	temp := shadow.NewTemp(n)
	for i := 0; i < n; i++ {
		o := off + i*stride
		if v := em.State.GetTS(o); v != nil {
			shadow.Own(v)
			temp.Values[i] = v
		} else {
			temp.Values[i] = shadow.Widen(laneTy, host.TSFloat(o, laneTy), !em.Cfg.NoExprs)
		}
	}
	em.State.ClearTemp(stmt.Dst)
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
	em.Tracker.SetTempType(stmt.Dst, laneTy)
}

// getI: array-relative Get at a dynamically computed offset.
func (em *Emitter) getI(stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	laneTy, n, _ := lanesOf(stmt.Type)
	if n == 0 {
		em.Tracker.SetTempType(stmt.Dst, fttype.NonFloat)
		em.State.ClearTemp(stmt.Dst)
		return
	}
	idx := int(rawBitsOf(stmt.Ix, host)) % maxInt(stmt.IxLen, 1)
	off := stmt.IxBase + idx*stmt.IxElemSize

	temp := shadow.NewTemp(1)
	if v := em.State.GetTS(off); v != nil {
		shadow.Own(v)
		temp.Values[0] = v
	} else {
		temp.Values[0] = shadow.Widen(laneTy, host.TSFloat(off, laneTy), !em.Cfg.NoExprs)
	}
	em.State.ClearTemp(stmt.Dst)
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
	em.Tracker.SetTempType(stmt.Dst, laneTy)
}

// load: t = Load addr. Always a dynamic memory lookup; the result's
// static type is never provable, so the tracker is left at Unknown.
func (em *Emitter) load(stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	laneTy, n, stride := lanesOf(stmt.Type)
	if n == 0 {
		em.Tracker.SetTempType(stmt.Dst, fttype.NonFloat)
		em.State.ClearTemp(stmt.Dst)
		return
	}
	addr := rawBitsOf(stmt.Addr2, host)
	lanes := make([]fttype.FloatType, n)
	concrete := make([]float64, n)
	for i := 0; i < n; i++ {
		lanes[i] = laneTy
		concrete[i] = host.MemFloat(addr+uint64(i*stride), laneTy)
	}
	temp := em.State.Mem.GetMem(addr, lanes, concrete)
	em.State.ClearTemp(stmt.Dst)
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
	em.Tracker.SetTempType(stmt.Dst, fttype.Unknown)
}

// loadG: guarded Load. When the guard is false, the alternate value's
// shadow is used in place of a memory lookup.
func (em *Emitter) loadG(stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	if guardTrue(stmt.Cond, host) {
		em.load(stmt, host, l)
		return
	}
	laneTy, _, _ := lanesOf(stmt.Type)
	val := em.resolveOperand(stmt.Alt, host, laneTy)
	em.State.ClearTemp(stmt.Dst)
	temp := shadow.NewTemp(1)
	temp.Values[0] = val
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
	em.Tracker.SetTempType(stmt.Dst, fttype.Unknown)
}

// store: Store addr <- e. A dynamic set if e has a shadow, else a clear
// (the write still invalidates whatever shadow used to live there).
func (em *Emitter) store(stmt irstmt.Stmt, host Host) {
	laneTy, n, stride := lanesOf(stmt.Type)
	if n == 0 {
		return
	}
	addr := rawBitsOf(stmt.Addr2, host)
	lanes := make([]fttype.FloatType, n)
	for i := range lanes {
		lanes[i] = laneTy
	}

	if stmt.Src.IsConst {
		em.State.Mem.ClearMem(addr, lanes)
		return
	}
	src := em.State.LoadTemp(stmt.Src.Temp)
	if src == nil {
		em.State.Mem.ClearMem(addr, lanes)
		return
	}
	dup := shadow.CopyTemp(src)
	em.State.Mem.SetMem(addr, dup, lanes)
	shadow.ReleaseWrapper(dup)
}

// storeG: guarded Store; a false guard is a complete no-op.
func (em *Emitter) storeG(stmt irstmt.Stmt, host Host) {
	if !guardTrue(stmt.Cond, host) {
		return
	}
	em.store(stmt, host)
}

// cas: explicit non-goal. The destination is treated as an unshadowed
// integer result.
func (em *Emitter) cas(stmt irstmt.Stmt) {
	em.Tracker.SetTempType(stmt.Dst, fttype.NonFloat)
	em.State.ClearTemp(stmt.Dst)
}

// op: arithmetic Op. Resolves operand shadows (synthesising from concrete
// bits where absent) and hands them to the executor.
func (em *Emitter) op(blockAddr uint64, stmt irstmt.Stmt, host Host, l *ledger.Ledger) {
	operandExprs := []irstmt.Expr{stmt.A}
	if !isUnary(stmt.Op) {
		operandExprs = append(operandExprs, stmt.B)
	}
	resultTy, _, _ := lanesOf(stmt.Type)

	operands := make([]executor.Operand, len(operandExprs))
	for i, oe := range operandExprs {
		var sv *shadow.Value
		if !oe.IsConst {
			if t := em.State.LoadTemp(oe.Temp); t != nil && len(t.Values) > 0 && t.Values[0] != nil {
				// Borrowed, not owned: the temp-table slot still holds the
				// reference Execute reads through Operand.Shadow.
				sv = t.Values[0]
			}
		}
		operands[i] = executor.Operand{Shadow: sv, Concrete: concreteFloat(oe, host)}
	}

	site := opinfo.Site{OpCode: stmt.Op, Addr: stmt.Addr, BlockAddr: blockAddr}
	resultConcrete := floatFromBits(host.TempBits(stmt.Dst), stmt.Type)
	result := em.Exec.Execute(site, stmt.Op, operands, resultTy, resultConcrete)

	em.State.ClearTemp(stmt.Dst)
	temp := shadow.NewTemp(1)
	temp.Values[0] = result
	em.State.StoreTemp(stmt.Dst, temp)
	l.Register(stmt.Dst)
	em.Tracker.SetTempType(stmt.Dst, resultTy)
}

func isUnary(op irstmt.Op) bool {
	return op == irstmt.OpNeg || op == irstmt.OpAbs || op == irstmt.OpSqrt
}
