// Package tasks runs a container's preStart/postStop tasks (spec §4.5's
// task list) after substituting "${VAR}" placeholders in each task's
// parameters against the process environment. Unlike the rest of the
// ambient stack this package is deliberately stdlib-only: "${VAR}"
// substitution is a handful of lines of strings.Builder scanning, and no
// example repo in the corpus imports a templating engine for anything this
// narrow (see DESIGN.md).
package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Tasks"

// Runner executes a single named task with its expanded parameters.
type Runner interface {
	Run(ctx context.Context, name string, params map[string]string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, params map[string]string) error

func (f RunnerFunc) Run(ctx context.Context, name string, params map[string]string) error {
	return f(ctx, name, params)
}

// Executor runs every task of a given phase in descriptor order.
type Executor struct {
	runner Runner
}

// NewExecutor returns an Executor dispatching each task to runner.
func NewExecutor(runner Runner) *Executor {
	return &Executor{runner: runner}
}

// RunPhase executes every task in tasks whose Phase matches phase, in
// order, expanding each parameter against env first. A task failure is
// logged and execution continues with the next task (spec §4.5: "task
// failures do not abort the process group they accompany").
func (e *Executor) RunPhase(ctx context.Context, all []descriptor.Task, phase descriptor.TaskPhase, env map[string]string) {
	for _, task := range all {
		if task.Phase != phase {
			continue
		}
		expanded := expandParams(task.Params, env)
		logging.Info(subsystem, "running task %s (phase %s)", task.Name, phase)
		if err := e.runner.Run(ctx, task.Name, expanded); err != nil {
			logging.Warn(subsystem, "task %s failed: %v", task.Name, err)
		}
	}
}

// expandParams returns a copy of params with every "${VAR}" reference
// resolved against env; an unresolved reference is left verbatim, matching
// a permissive templating default rather than failing the task outright.
func expandParams(params map[string]string, env map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = expand(v, env)
	}
	return out
}

func expand(s string, env map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end >= 0 {
				name := s[i+2 : i+2+end]
				if val, ok := env[name]; ok {
					b.WriteString(val)
				} else {
					b.WriteString(fmt.Sprintf("${%s}", name))
				}
				i += 2 + end + 1
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
