// Package launcher resolves the sink binary for an indexer's type,
// assembles its argument vector, and spawns the sink process with piped
// stdout/stderr.
package launcher

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/indexerhq/controlplane/internal/domain"
)

// binaryNames maps an indexer type to its sink binary name.
var binaryNames = map[domain.Type]string{
	domain.TypeWebhook:  "sink-webhook",
	domain.TypePostgres: "sink-postgres",
	domain.TypeConsole:  "sink-console",
}

// FailedToStartError reports a spawn failure for a specific indexer.
type FailedToStartError struct {
	IndexerID string
	Reason    string
}

func (e *FailedToStartError) Error() string {
	return fmt.Sprintf("failed to start indexer %s: %s", e.IndexerID, e.Reason)
}

// Process is a spawned sink child: its pid and line-reader pair, handed to
// the Process Supervisor for multiplexing with the exit event.
type Process struct {
	Cmd    *exec.Cmd
	Pid    int
	Stdout *bufio.Scanner
	Stderr *bufio.Scanner
}

// Launcher spawns sink child processes.
type Launcher struct {
	binaryBasePath string
	authToken      string
	redisURL       string
	defaultPGConn  string
}

// Config holds the subset of sink configuration the Launcher needs to
// assemble argument vectors.
type Config struct {
	BinaryBasePath string
	AuthToken      string
	RedisURL       string
	DefaultPGConn  string
}

// New builds a Launcher.
func New(cfg Config) *Launcher {
	return &Launcher{
		binaryBasePath: cfg.BinaryBasePath,
		authToken:      cfg.AuthToken,
		redisURL:       cfg.RedisURL,
		defaultPGConn:  cfg.DefaultPGConn,
	}
}

// Spawn resolves the binary for idx.Type, assembles its argument vector,
// and starts the child with scriptPath staged locally and statusPort bound
// on the provided loopback status-server port. The caller owns Process's
// lifetime: it must drain Stdout/Stderr and call Cmd.Wait() (or let the
// Supervisor do so) to avoid leaking the child as a zombie.
func (l *Launcher) Spawn(idx *domain.Indexer, scriptPath string, statusPort int32) (*Process, error) {
	binary, ok := binaryNames[idx.Type]
	if !ok {
		return nil, &FailedToStartError{IndexerID: idx.ID, Reason: "unknown indexer type " + string(idx.Type)}
	}
	binaryPath := filepath.Join(l.binaryBasePath, binary)

	args := l.commonArgs(idx, scriptPath, statusPort)
	args = append(args, l.variantArgs(idx)...)

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("STARTING_BLOCK=%d", idx.EffectiveStartingBlock()))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &FailedToStartError{IndexerID: idx.ID, Reason: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &FailedToStartError{IndexerID: idx.ID, Reason: err.Error()}
	}

	if err := cmd.Start(); err != nil {
		return nil, &FailedToStartError{IndexerID: idx.ID, Reason: err.Error()}
	}

	return &Process{
		Cmd:    cmd,
		Pid:    cmd.Process.Pid,
		Stdout: bufio.NewScanner(stdout),
		Stderr: bufio.NewScanner(stderr),
	}, nil
}

// commonArgs builds the argument vector every sink binary accepts.
func (l *Launcher) commonArgs(idx *domain.Indexer, scriptPath string, statusPort int32) []string {
	return []string{
		"run", scriptPath,
		"--auth-token", l.authToken,
		"--persist-to-redis", l.redisURL,
		"--sink-id", idx.EffectiveIndexerID(),
		"--status-server-address", fmt.Sprintf("0.0.0.0:%d", statusPort),
		"--allow-env-from-env", "STARTING_BLOCK",
	}
}

// variantArgs builds the type-specific tail of the argument vector.
func (l *Launcher) variantArgs(idx *domain.Indexer) []string {
	switch idx.Type {
	case domain.TypeWebhook:
		var targetURL string
		if idx.TargetURL != nil {
			targetURL = *idx.TargetURL
		}
		return []string{"--target-url", targetURL}
	case domain.TypePostgres:
		connString := l.defaultPGConn
		if idx.CustomConnectionString != nil && *idx.CustomConnectionString != "" {
			connString = *idx.CustomConnectionString
		}
		var tableName string
		if idx.TableName != nil {
			tableName = *idx.TableName
		}
		return []string{"--connection-string", connString, "--table-name", tableName}
	case domain.TypeConsole:
		return nil
	default:
		return nil
	}
}
