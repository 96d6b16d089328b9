package launcher

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestIsAlive_CurrentProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Fatal("expected the running test process to report alive")
	}
}

func TestIsAlive_InvalidPID(t *testing.T) {
	if IsAlive(0) {
		t.Fatal("expected pid 0 to report not alive")
	}
	if IsAlive(-1) {
		t.Fatal("expected a negative pid to report not alive")
	}
}

func TestIsAlive_ExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run helper process: %v", err)
	}
	if IsAlive(cmd.Process.Pid) {
		t.Fatal("expected a reaped, exited process to report not alive")
	}
}

func TestIsAlive_ZombieProcessIsNotAlive(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start helper process: %v", err)
	}
	pid := cmd.Process.Pid

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if isZombie(pid) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if IsAlive(pid) {
		t.Fatal("expected a zombie (exited, unreaped) process to report not alive")
	}

	cmd.Wait()
}
