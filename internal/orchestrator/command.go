package orchestrator

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// commandWaitDelay bounds how long Run waits for pipes after the process
// is killed.
const commandWaitDelay = 5 * time.Second

// CommandTask runs an external process. It is killed when the task
// context ends; a non-zero exit fails the task with its stderr.
type CommandTask struct {
	name string
	path string
	args []string
	dir  string
	env  []string
}

// NewCommandTask returns a task that runs path with args.
func NewCommandTask(name, path string, args ...string) *CommandTask {
	return &CommandTask{name: name, path: path, args: args}
}

// WithDir sets the working directory.
func (t *CommandTask) WithDir(dir string) *CommandTask { t.dir = dir; return t }

// WithEnv appends KEY=value pairs to the inherited environment.
func (t *CommandTask) WithEnv(env ...string) *CommandTask { t.env = append(t.env, env...); return t }

func (t *CommandTask) Name() string { return t.name }

func (t *CommandTask) Run(ctx context.Context) (Result, error) {
	cmd := exec.CommandContext(ctx, t.path, t.args...)
	cmd.Dir = t.dir
	if len(t.env) > 0 {
		cmd.Env = append(cmd.Environ(), t.env...)
	}
	cmd.WaitDelay = commandWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Output: stdout.String()}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return res, eris.Wrapf(err, "command %s", t.name)
		}
		return res, eris.Wrapf(err, "command %s: %s", t.name, msg)
	}
	return res, nil
}
