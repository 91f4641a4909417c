// Package script runs a JavaScript calculator bundle inside a pool of
// sandboxed goja VMs, each preloaded with the bundle.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a call exceeds the execution time limit.
var ErrTimeout = errors.New("script: execution timed out")

// ErrPanic is returned when the VM panics.
var ErrPanic = errors.New("script: uncaught exception")

// ErrNoFunction is returned when the bundle does not define the called function.
var ErrNoFunction = errors.New("script: function not defined")

// maxExportDepth bounds Export on cyclic object graphs.
const maxExportDepth = 8

// VMPool is a thread-safe pool of goja runtimes that have all run the same bundle.
type VMPool struct {
	pool    chan *goja.Runtime
	program *goja.Program
	timeout time.Duration
	logger  *zap.Logger
	size    int
}

// NewVMPool compiles src and creates size runtimes that have each run it.
func NewVMPool(src string, size int, timeout time.Duration, logger *zap.Logger) (*VMPool, error) {
	if size <= 0 {
		size = 4
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	program, err := goja.Compile("bundle.js", src, false)
	if err != nil {
		return nil, fmt.Errorf("compile bundle: %w", err)
	}
	p := &VMPool{
		pool:    make(chan *goja.Runtime, size),
		program: program,
		timeout: timeout,
		logger:  logger,
		size:    size,
	}
	for i := 0; i < size; i++ {
		vm, err := p.newVM()
		if err != nil {
			return nil, err
		}
		p.pool <- vm
	}
	return p, nil
}

// Size returns the number of pooled runtimes.
func (p *VMPool) Size() int { return p.size }

func (p *VMPool) newVM() (*goja.Runtime, error) {
	vm := newSafeVM()
	if _, err := vm.RunProgram(p.program); err != nil {
		return nil, fmt.Errorf("run bundle: %w", err)
	}
	return vm, nil
}

// Do runs fn with exclusive use of a pooled VM. Script execution started by
// fn is interrupted after the pool timeout; a VM that timed out or panicked
// is replaced rather than reused.
func (p *VMPool) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	var vm *goja.Runtime
	select {
	case vm = <-p.pool:
	case <-ctx.Done():
		return ctx.Err()
	}

	tainted := false
	defer func() {
		if !tainted {
			vm.ClearInterrupt()
			p.pool <- vm
			return
		}
		fresh, err := p.newVM()
		if err != nil {
			// The bundle ran once already; keep the pool size by reusing the old VM.
			p.logger.Error("script: replace vm", zap.Error(err))
			vm.ClearInterrupt()
			fresh = vm
		}
		p.pool <- fresh
	}()

	timer := time.AfterFunc(p.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Warn("script: vm panic", zap.Any("panic", r))
				tainted = true
				runErr = ErrPanic
			}
		}()
		runErr = fn(vm)
	}()

	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) || errors.Is(runErr, ErrTimeout) {
		tainted = true
		return ErrTimeout
	}
	var ex *goja.Exception
	if errors.As(runErr, &ex) {
		return errors.New(ex.Error())
	}
	return runErr
}

// Call invokes the global function name and hands its exported result to
// handle while the VM is still held. Function-valued fields in the result
// are closures that are only valid inside handle.
func (p *VMPool) Call(ctx context.Context, name string, args []any, handle func(result any) error) error {
	return p.Do(ctx, func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(vm.Get(name))
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoFunction, name)
		}
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = vm.ToValue(a)
		}
		v, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return err
		}
		if handle == nil {
			return nil
		}
		return handle(Export(vm, v))
	})
}

// Export converts a JS value to Go. Objects become map[string]any including
// their prototype methods, arrays become []any, and functions become
// zero-argument closures bound to their object.
func Export(vm *goja.Runtime, v goja.Value) any {
	objectProto := vm.Get("Object").ToObject(vm).Get("prototype")
	return export(vm, v, nil, objectProto, 0)
}

func export(vm *goja.Runtime, v goja.Value, this goja.Value, objectProto goja.Value, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if fn, ok := goja.AssertFunction(v); ok {
		if this == nil {
			this = goja.Undefined()
		}
		return func() any {
			out, err := fn(this)
			if err != nil {
				panic(err)
			}
			return export(vm, out, nil, objectProto, depth+1)
		}
	}
	obj, ok := v.(*goja.Object)
	if !ok || depth >= maxExportDepth {
		return v.Export()
	}
	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = export(vm, obj.Get(fmt.Sprint(i)), obj, objectProto, depth+1)
		}
		return out
	case "Object":
		out := make(map[string]any)
		for _, key := range obj.Keys() {
			out[key] = export(vm, obj.Get(key), obj, objectProto, depth+1)
		}
		for proto := obj.Prototype(); proto != nil && !proto.SameAs(objectProto); proto = proto.Prototype() {
			for _, key := range proto.GetOwnPropertyNames() {
				if _, seen := out[key]; seen || key == "constructor" {
					continue
				}
				out[key] = export(vm, obj.Get(key), obj, objectProto, depth+1)
			}
		}
		return out
	}
	return obj.Export()
}

// newSafeVM creates a goja Runtime with dangerous globals removed and a
// deterministic Math.random.
func newSafeVM() *goja.Runtime {
	vm := goja.New()
	for _, name := range []string{"require", "process", "fetch", "XMLHttpRequest", "eval", "Function"} {
		_ = vm.Set(name, goja.Undefined())
	}
	if math := vm.Get("Math"); math != nil {
		_ = math.ToObject(vm).Set("random", func() float64 { return 0 })
	}
	return vm
}
