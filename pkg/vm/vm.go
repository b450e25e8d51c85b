package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/arcbyte/timidvm/pkg/bytecode"
	"github.com/arcbyte/timidvm/pkg/value"
)

// defaultStackSize is the operand stack depth used when a VM isn't
// given an explicit WithStackSize option. The original interpreter
// leaves its stack-size macro without a value; 256 is a concrete, generous
// default for a language with no recursion.
const defaultStackSize = 256

// Status is the outcome of a completed Run.
type Status int

const (
	// OK means the Block ran to an OpReturn without error.
	OK Status = iota
	// RuntimeErrorStatus means dispatch stopped on a RuntimeError.
	RuntimeErrorStatus
)

// VM is a single-threaded, stack-based bytecode interpreter. It owns
// the operand stack, the current Block and instruction pointer, the
// globals table, and the string interner (which also owns the object
// free-list) — state the original interpreter keeps as process-wide
// globals, held here as an ordinary instance instead so multiple
// independent VMs can coexist (useful for tests, harmless for a CLI
// that only ever creates one).
type VM struct {
	stack []value.Value
	sp    int

	block *bytecode.Block
	ip    int

	interner *value.Interner
	globals  *value.Table

	stdout io.Writer
	stdin  *bufio.Reader

	logger *zap.Logger

	currentOpcode bytecode.Opcode
	faultIP       int
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStackSize overrides the default 256-slot operand stack.
func WithStackSize(n int) Option {
	return func(v *VM) { v.stack = make([]value.Value, n) }
}

// WithLogger attaches a zap logger for dispatch tracing and
// load/runtime diagnostics. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *VM) { v.logger = logger }
}

// WithStdout overrides the stream OP_PRINT writes to. Defaults to
// os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(v *VM) { v.stdout = w }
}

// WithStdin overrides the stream OP_GET_INPUT reads from. Defaults to
// os.Stdin.
func WithStdin(r io.Reader) Option {
	return func(v *VM) { v.stdin = bufio.NewReader(r) }
}

// New constructs a VM with an empty globals table, a fresh interner,
// and a 256-slot operand stack, then applies opts.
func New(opts ...Option) *VM {
	v := &VM{
		stack:    make([]value.Value, defaultStackSize),
		interner: value.NewInterner(),
		globals:  value.NewTable(),
		stdout:   os.Stdout,
		stdin:    bufio.NewReader(os.Stdin),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Interner exposes the VM's string interner so a Loader can intern
// constant-pool strings into the same table the running VM will use
// for pointer-identity comparisons.
func (vm *VM) Interner() *value.Interner { return vm.interner }

// Close releases the VM's object free-list. Safe to call once after
// the VM is done being used; see value.Interner.Release.
func (vm *VM) Close() {
	vm.interner.Release()
}

func (vm *VM) push(v value.Value) error {
	if vm.sp >= len(vm.stack) {
		return vm.fault(ErrStackOverflow, "")
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if vm.sp == 0 {
		return value.NullValue, vm.fault(ErrStackUnderflow, "")
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) readByte() byte {
	b := vm.block.At(vm.ip)
	vm.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	lo := vm.readByte()
	hi := vm.readByte()
	return uint16(lo) | uint16(hi)<<8
}

func (vm *VM) readLong() int {
	b0 := vm.readByte()
	b1 := vm.readByte()
	b2 := vm.readByte()
	return int(b0) | int(b1)<<8 | int(b2)<<16
}

// readNameIndex reads the subform byte plus its 1- or 3-byte index and
// returns the resolved index, as written by Block.WriteConstant.
func (vm *VM) readNameIndex() int {
	subform := bytecode.Opcode(vm.readByte())
	if subform == bytecode.OpConstantLong {
		return vm.readLong()
	}
	return int(vm.readByte())
}

// Run executes block from its first instruction until OpReturn or a
// runtime error. The operand stack is reset to empty first; the
// globals table and interner persist across calls — Blocks are
// per-interpretation, but the VM's tables live for the VM's lifetime.
func (vm *VM) Run(block *bytecode.Block) (Status, error) {
	vm.block = block
	vm.ip = 0
	vm.sp = 0

	for {
		if vm.ip >= block.Len() {
			return OK, nil
		}

		opcode := bytecode.Opcode(vm.readByte())
		vm.currentOpcode = opcode
		vm.faultIP = vm.ip - 1

		vm.logger.Debug("dispatch",
			zap.Stringer("opcode", opcode),
			zap.Int("ip", vm.faultIP),
			zap.Int("sp", vm.sp),
		)

		status, err := vm.dispatch(opcode)
		if err != nil {
			vm.logger.Error("runtime error", zap.Error(err))
			return RuntimeErrorStatus, err
		}
		if status == OK && opcode == bytecode.OpReturn {
			return OK, nil
		}
	}
}

// dispatch executes a single decoded opcode. It returns OK on success,
// OpReturn included (Run recognises OpReturn by its opcode and stops),
// and RuntimeErrorStatus together with the error on failure.
func (vm *VM) dispatch(opcode bytecode.Opcode) (Status, error) {
	switch opcode {
	case bytecode.OpNop:
		return OK, nil

	case bytecode.OpConstant:
		return OK, vm.push(vm.block.Constants[vm.readByte()])
	case bytecode.OpConstantLong:
		return OK, vm.push(vm.block.Constants[vm.readLong()])

	case bytecode.OpNegOne:
		return OK, vm.push(value.Int64(-1))
	case bytecode.OpZero:
		return OK, vm.push(value.Int64(0))
	case bytecode.OpOne:
		return OK, vm.push(value.Int64(1))
	case bytecode.OpTwo:
		return OK, vm.push(value.Int64(2))
	case bytecode.OpTrue:
		return OK, vm.push(value.Boolean(true))
	case bytecode.OpFalse:
		return OK, vm.push(value.Boolean(false))
	case bytecode.OpNull:
		return OK, vm.push(value.NullValue)

	case bytecode.OpPrint:
		v, err := vm.pop()
		if err != nil {
			return RuntimeErrorStatus, err
		}
		fmt.Fprintln(vm.stdout, v.Display())
		return OK, nil

	case bytecode.OpPop:
		_, err := vm.pop()
		return OK, err

	case bytecode.OpNegate:
		return vm.opNegate()
	case bytecode.OpNot:
		return vm.opNot()
	case bytecode.OpFact:
		return vm.opFact()

	case bytecode.OpAdd:
		return vm.opAdd()
	case bytecode.OpSub:
		return vm.opArith(opcode)
	case bytecode.OpMul:
		return vm.opMul()
	case bytecode.OpDiv:
		return vm.opArith(opcode)
	case bytecode.OpMod:
		return vm.opArith(opcode)
	case bytecode.OpPow:
		return vm.opArith(opcode)

	case bytecode.OpEq:
		return vm.opCompare(opcode)
	case bytecode.OpLt:
		return vm.opCompare(opcode)
	case bytecode.OpGt:
		return vm.opCompare(opcode)
	case bytecode.OpAnd:
		return vm.opLogic(opcode)
	case bytecode.OpOr:
		return vm.opLogic(opcode)

	case bytecode.OpJumpIfFalse:
		offset := vm.readShort()
		if !vm.peek(0).Truth() {
			vm.ip += int(offset)
		}
		return OK, nil
	case bytecode.OpJump:
		offset := vm.readShort()
		vm.ip += int(offset)
		return OK, nil
	case bytecode.OpLoop:
		offset := vm.readShort()
		vm.ip -= int(offset)
		return OK, nil

	case bytecode.OpDefineGlobal:
		return vm.opDefineGlobal()
	case bytecode.OpGetGlobal:
		return vm.opGetGlobal()
	case bytecode.OpSetGlobal:
		return vm.opSetGlobal()
	case bytecode.OpGetLocal:
		slot := vm.readNameIndex()
		return OK, vm.push(vm.stack[slot])
	case bytecode.OpSetLocal:
		slot := vm.readNameIndex()
		vm.stack[slot] = vm.peek(0)
		return OK, nil

	case bytecode.OpGetInput:
		return vm.opGetInput()
	case bytecode.OpSubscript:
		return vm.opSubscript()

	case bytecode.OpReturn:
		return OK, nil

	default:
		return RuntimeErrorStatus, vm.fault(ErrUnknownOpcode, "opcode byte 0x%02X", byte(opcode))
	}
}

func (vm *VM) opNegate() (Status, error) {
	top := vm.peek(0)
	if !top.IsNumeric() {
		return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected a numeric value to negate")
	}
	v, _ := vm.pop()
	if v.Kind == value.Float {
		return OK, vm.push(value.Float64(-v.AsFloat()))
	}
	return OK, vm.push(value.Int64(-v.ToInt()))
}

func (vm *VM) opNot() (Status, error) {
	v, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	return OK, vm.push(value.Boolean(!v.Truth()))
}

func (vm *VM) opFact() (Status, error) {
	top := vm.peek(0)
	if !top.IsIntegral() {
		return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected an integer to factorial")
	}
	v, _ := vm.pop()
	n := v.ToInt()
	if n < 0 {
		return RuntimeErrorStatus, vm.fault(ErrNegativeFactor, "cannot factorial negative number %d", n)
	}
	result := int64(1)
	for i := int64(1); i <= n; i++ {
		result *= i
	}
	return OK, vm.push(value.Int64(result))
}

func (vm *VM) opAdd() (Status, error) {
	b := vm.peek(0)
	a := vm.peek(1)
	if a.IsNumeric() && b.IsNumeric() {
		bv, _ := vm.pop()
		av, _ := vm.pop()
		return OK, vm.push(numericBinary(av, bv, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }))
	}
	if a.IsString() || b.IsString() {
		bv, _ := vm.pop()
		av, _ := vm.pop()
		return OK, vm.push(vm.concatenate(av, bv))
	}
	return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected numerical values to add, or at least one string to concatenate")
}

func (vm *VM) concatenate(a, b value.Value) value.Value {
	as := a.ToString(vm.interner)
	bs := b.ToString(vm.interner)
	buf := make([]byte, 0, len(as.Bytes)+len(bs.Bytes))
	buf = append(buf, as.Bytes...)
	buf = append(buf, bs.Bytes...)
	return value.FromString(vm.interner.MakeOwned(buf))
}

func (vm *VM) opArith(opcode bytecode.Opcode) (Status, error) {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumeric() || !b.IsNumeric() {
		return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected numerical values for %s", opcode)
	}
	bv, _ := vm.pop()
	av, _ := vm.pop()

	useFloat := av.Kind == value.Float || bv.Kind == value.Float

	switch opcode {
	case bytecode.OpSub:
		return OK, vm.push(numericBinary(av, bv, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }))
	case bytecode.OpDiv:
		if useFloat {
			if bv.ToFloat() == 0 {
				return RuntimeErrorStatus, vm.fault(ErrDivisionByZero, "")
			}
			return OK, vm.push(value.Float64(av.ToFloat() / bv.ToFloat()))
		}
		if bv.ToInt() == 0 {
			return RuntimeErrorStatus, vm.fault(ErrDivisionByZero, "")
		}
		return OK, vm.push(value.Int64(av.ToInt() / bv.ToInt()))
	case bytecode.OpMod:
		if useFloat {
			if bv.ToFloat() == 0 {
				return RuntimeErrorStatus, vm.fault(ErrDivisionByZero, "")
			}
			return OK, vm.push(value.Float64(math.Mod(av.ToFloat(), bv.ToFloat())))
		}
		if bv.ToInt() == 0 {
			return RuntimeErrorStatus, vm.fault(ErrDivisionByZero, "")
		}
		return OK, vm.push(value.Int64(av.ToInt() % bv.ToInt()))
	case bytecode.OpPow:
		if useFloat {
			if av.ToFloat() == 0 && bv.ToFloat() == 0 {
				return RuntimeErrorStatus, vm.fault(ErrZeroToZero, "")
			}
			return OK, vm.push(value.Float64(math.Pow(av.ToFloat(), bv.ToFloat())))
		}
		if av.ToInt() == 0 && bv.ToInt() == 0 {
			return RuntimeErrorStatus, vm.fault(ErrZeroToZero, "")
		}
		return OK, vm.push(value.Int64(int64(math.Pow(float64(av.ToInt()), float64(bv.ToInt())))))
	default:
		return RuntimeErrorStatus, vm.fault(ErrUnknownOpcode, "")
	}
}

func (vm *VM) opMul() (Status, error) {
	b := vm.peek(0)
	a := vm.peek(1)

	switch {
	case a.IsNumeric() && b.IsNumeric():
		bv, _ := vm.pop()
		av, _ := vm.pop()
		return OK, vm.push(numericBinary(av, bv, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }))

	case a.IsString() && b.IsIntegral():
		bv, _ := vm.pop()
		av, _ := vm.pop()
		return OK, vm.push(vm.stringMultiply(av, int(bv.ToInt())))

	case b.IsString() && a.IsIntegral():
		bv, _ := vm.pop()
		av, _ := vm.pop()
		return OK, vm.push(vm.stringMultiply(bv, int(av.ToInt())))
	}

	return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected numerical values to multiply, or a string and an integer")
}

func (vm *VM) stringMultiply(s value.Value, times int) value.Value {
	if times <= 0 {
		return value.FromString(vm.interner.Empty())
	}
	str := s.ToString(vm.interner)
	buf := make([]byte, 0, len(str.Bytes)*times)
	for i := 0; i < times; i++ {
		buf = append(buf, str.Bytes...)
	}
	return value.FromString(vm.interner.MakeOwned(buf))
}

// numericBinary applies intOp when both operands are integral,
// otherwise floatOp — the "Int if both integral else Float" coercion
// rule used by every binary arithmetic opcode.
func numericBinary(a, b value.Value, intOp func(int64, int64) int64, floatOp func(float64, float64) float64) value.Value {
	if a.IsIntegral() && b.IsIntegral() {
		return value.Int64(intOp(a.ToInt(), b.ToInt()))
	}
	return value.Float64(floatOp(a.ToFloat(), b.ToFloat()))
}

func (vm *VM) opCompare(opcode bytecode.Opcode) (Status, error) {
	b, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	a, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	switch opcode {
	case bytecode.OpEq:
		return OK, vm.push(value.Boolean(value.Equals(a, b)))
	case bytecode.OpLt:
		return OK, vm.push(value.Boolean(value.LessThan(a, b)))
	case bytecode.OpGt:
		return OK, vm.push(value.Boolean(value.GreaterThan(a, b)))
	default:
		return RuntimeErrorStatus, vm.fault(ErrUnknownOpcode, "")
	}
}

func (vm *VM) opLogic(opcode bytecode.Opcode) (Status, error) {
	b, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	a, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	if opcode == bytecode.OpAnd {
		return OK, vm.push(value.Boolean(a.Truth() && b.Truth()))
	}
	return OK, vm.push(value.Boolean(a.Truth() || b.Truth()))
}

func (vm *VM) opDefineGlobal() (Status, error) {
	name := vm.resolveName()
	v := vm.peek(0)
	vm.globals.Set(name, v)
	_, err := vm.pop()
	return OK, err
}

func (vm *VM) opGetGlobal() (Status, error) {
	name := vm.resolveName()
	v, ok := vm.globals.Get(name)
	if !ok {
		return RuntimeErrorStatus, vm.fault(ErrUndefinedGlobal, "%q", name.Bytes)
	}
	return OK, vm.push(v)
}

func (vm *VM) opSetGlobal() (Status, error) {
	name := vm.resolveName()
	if vm.globals.Set(name, vm.peek(0)) {
		vm.globals.Delete(name)
		return RuntimeErrorStatus, vm.fault(ErrUndefinedGlobal, "%q", name.Bytes)
	}
	return OK, nil
}

// resolveName reads a name-bearing opcode's subform+index operand and
// resolves it to the *value.String constant it names.
func (vm *VM) resolveName() *value.String {
	index := vm.readNameIndex()
	return vm.block.Constants[index].AsString()
}

func (vm *VM) opGetInput() (Status, error) {
	prompt, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	fmt.Fprint(vm.stdout, prompt.Display())

	line, err := vm.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return RuntimeErrorStatus, vm.fault(ErrInputFailed, "%v", err)
	}
	line = trimTrailingNewline(line)
	return OK, vm.push(value.FromString(vm.interner.MakeOwned([]byte(line))))
}

func trimTrailingNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

func (vm *VM) opSubscript() (Status, error) {
	subscript, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}
	iterable, err := vm.pop()
	if err != nil {
		return RuntimeErrorStatus, err
	}

	if !iterable.IsString() || subscript.Kind != value.Int {
		return RuntimeErrorStatus, vm.fault(ErrTypeMismatch, "expected a string and integer to subscript")
	}

	str := iterable.AsString()
	index := int(subscript.AsInt())
	if index >= str.Length() {
		return RuntimeErrorStatus, vm.fault(ErrIndexOutOfRange, "index %d >= length %d", index, str.Length())
	}
	for index < 0 {
		index += str.Length()
	}

	ch := vm.interner.MakeOwned([]byte{str.Bytes[index]})
	return OK, vm.push(value.FromString(ch))
}
