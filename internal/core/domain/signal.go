package domain

import "fmt"

// Signal numbers used on the exit path (Linux x86-64 numbering).
const (
	SIGKILL = 9
	SIGCHLD = 17
)

// Siginfo is the payload of a queued signal.
type Siginfo struct {
	Signo  int   `json:"signo"`
	PID    int32 `json:"pid"`
	UID    int32 `json:"uid"`
	Status int   `json:"status"`
}

// ChildStatus encodes an exit code the way wait(2) reports a normal exit.
func ChildStatus(exitCode int) int {
	return (exitCode & 0xff) << 8
}

// ChildExited builds the SIGCHLD payload sent to a parent when a child exits.
func ChildExited(tid, uid int32, exitCode int) Siginfo {
	return Siginfo{
		Signo:  SIGCHLD,
		PID:    tid,
		UID:    uid,
		Status: ChildStatus(exitCode),
	}
}

func (s Siginfo) String() string {
	return fmt.Sprintf("sig=%d pid=%d uid=%d status=%#x", s.Signo, s.PID, s.UID, s.Status)
}
