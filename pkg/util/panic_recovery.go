package util

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// PanicHandler contains panics in loop goroutines and logs them with a stack
type PanicHandler struct {
	logger *logrus.Logger
}

// NewPanicHandler creates a new panic handler
func NewPanicHandler(logger *logrus.Logger) *PanicHandler {
	return &PanicHandler{logger: logger}
}

// PanicError is returned by Guard when fn panicked
type PanicError struct {
	Component string
	Value     interface{}
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Component, e.Value)
}

// Recover recovers from panics and logs them. Use it directly in a defer.
func (ph *PanicHandler) Recover(component string) {
	if r := recover(); r != nil {
		ph.log(component, r, debug.Stack())
	}
}

// RecoverWithCallback recovers from panics and executes a callback
func (ph *PanicHandler) RecoverWithCallback(component string, callback func(interface{})) {
	r := recover()
	if r == nil {
		return
	}
	ph.log(component, r, debug.Stack())

	if callback != nil {
		func() {
			defer func() {
				if cbPanic := recover(); cbPanic != nil {
					ph.logger.WithFields(logrus.Fields{
						"component":      component,
						"callback_panic": cbPanic,
					}).Error("Panic in panic recovery callback")
				}
			}()
			callback(r)
		}()
	}
}

// Guard runs fn and converts a panic into a *PanicError
func (ph *PanicHandler) Guard(component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			ph.log(component, r, stack)
			err = &PanicError{Component: component, Value: r, Stack: stack}
		}
	}()
	return fn()
}

// WrapGoroutine wraps a goroutine function with panic recovery
func (ph *PanicHandler) WrapGoroutine(component string, fn func()) func() {
	return func() {
		defer ph.Recover(component)
		fn()
	}
}

// SafeGo starts a goroutine with panic recovery
func (ph *PanicHandler) SafeGo(component string, fn func()) {
	go ph.WrapGoroutine(component, fn)()
}

func (ph *PanicHandler) log(component string, value interface{}, stack []byte) {
	var caller string
	if pc, file, line, ok := runtime.Caller(3); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
		} else {
			caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	ph.logger.WithFields(logrus.Fields{
		"component":   component,
		"panic_value": value,
		"caller":      caller,
		"stack_trace": string(stack),
	}).Error("Panic recovered")
}
