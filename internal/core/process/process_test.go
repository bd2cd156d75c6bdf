//go:build !windows

package process

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, h Handle) (string, string) {
	t.Helper()
	out, err := io.ReadAll(h.Stdout())
	require.NoError(t, err)
	errOut, err := io.ReadAll(h.Stderr())
	require.NoError(t, err)
	return string(out), string(errOut)
}

func TestExecSpawner_ExitCodeAndStreams(t *testing.T) {
	s := NewExecSpawner(time.Second)
	h, err := s.Spawn(Command{Name: "sh", Args: []string{"-c", "echo out; echo err 1>&2; exit 3"}})
	require.NoError(t, err)

	stdout, stderr := drain(t, h)
	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "out", strings.TrimSpace(stdout))
	assert.Equal(t, "err", strings.TrimSpace(stderr))
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	s := NewExecSpawner(time.Second)
	_, err := s.Spawn(Command{Name: "definitely-not-a-real-binary-tubestash"})
	assert.Error(t, err)
}

func TestExecSpawner_Stop(t *testing.T) {
	s := NewExecSpawner(200 * time.Millisecond)
	h, err := s.Spawn(Command{Name: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	h.Stop()
	h.Stop()

	done := make(chan int, 1)
	go func() {
		_, _ = io.Copy(io.Discard, h.Stdout())
		_, _ = io.Copy(io.Discard, h.Stderr())
		code, _ := h.Wait()
		done <- code
	}()

	select {
	case code := <-done:
		assert.NotEqual(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not stop")
	}
}

func TestExecSpawner_StopSendsSIGTERM(t *testing.T) {
	s := NewExecSpawner(5 * time.Second)
	h, err := s.Spawn(Command{Name: "sh", Args: []string{"-c",
		`trap 'echo term; exit 7' TERM; echo ready; while :; do sleep 0.05; done`}})
	require.NoError(t, err)

	out := bufio.NewReader(h.Stdout())
	line, err := out.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready", strings.TrimSpace(line))

	h.Stop()

	rest, err := io.ReadAll(out)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, h.Stderr())
	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Equal(t, "term", strings.TrimSpace(string(rest)))
}
