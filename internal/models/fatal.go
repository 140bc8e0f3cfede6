package models

import "fmt"

// Exit codes published by the run command. Each failure category maps
// to exactly one code so that schedulers and monitoring can tell the
// stages apart.
const (
	ExitBadMountPoint    = 1
	ExitMountFailed      = 2
	ExitMissingBackupDir = 3
	ExitMkdirFailed      = 4
	ExitBackupFailed     = 5
	ExitUnmountFailed    = 6
)

// FatalError aborts the backup run. It carries the process exit code
// and is handled exactly once at the top level instead of calling
// os.Exit deep inside the workflow.
type FatalError struct {
	Code    int
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s [ERR%d]", e.Message, e.Code)
}
