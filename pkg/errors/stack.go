package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type stack []uintptr

func callers() *stack {
	var pcs [maxStackDepth]uintptr
	// skip runtime.Callers, callers and the errors constructor itself.
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// fullStack renders every frame as "package.func(file:line)", leaf first.
func (s *stack) fullStack() []string {
	if s == nil || len(*s) == 0 {
		return nil
	}
	lines := make([]string, 0, len(*s))
	frames := runtime.CallersFrames(*s)
	for {
		frame, more := frames.Next()
		if frame.Function == "" {
			break
		}
		if strings.HasPrefix(frame.Function, "runtime.") {
			break
		}
		lines = append(lines, fmt.Sprintf("%v(%v:%v)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return lines
}
