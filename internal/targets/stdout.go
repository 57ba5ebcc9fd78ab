package targets

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

type StdoutTarget struct {
	out io.Writer
}

func (c *StdoutTarget) Notify(_ context.Context, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] Notification: %s\n", time.Now().UTC().Format(time.RFC3339), message)
	return err
}

func NewStdoutTarget() *StdoutTarget {
	return &StdoutTarget{out: os.Stdout}
}
