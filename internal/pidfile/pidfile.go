// Package pidfile provides structure and helper functions to create and remove
// PID file. A PID file is usually a file used to store the process ID of a
// running process.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is a file used to store the process ID of a running process.
type PIDFile struct {
	path string
}

func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

func checkPIDFileAlreadyExists(path string) error {
	if pidByte, err := os.ReadFile(path); err == nil {
		pidString := strings.TrimSpace(string(pidByte))
		if pid, err := strconv.Atoi(pidString); err == nil {
			if processExists(pid) {
				return fmt.Errorf("pid file found, ensure the agent is not running or delete %s", path)
			}
		}
	}
	return nil
}

// New creates a PIDFile using the specified path.
func New(path string) (*PIDFile, error) {
	if err := checkPIDFileAlreadyExists(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0o755)); err != nil {
		return nil, err
	}
	file := &PIDFile{path: path}
	if err := file.Write(); err != nil {
		return nil, err
	}
	return file, nil
}

// Write writes the current process id to the file.
func (file PIDFile) Write() error {
	return file.WritePID(os.Getpid())
}

// WritePID writes the specified pid to the file.
func (file PIDFile) WritePID(pid int) error {
	return os.WriteFile(file.path, []byte(strconv.Itoa(pid)), 0o644)
}

// Remove removes the PIDFile.
func (file PIDFile) Remove() error {
	return os.Remove(file.path)
}
