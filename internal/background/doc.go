// Package background launches and tracks background jobs for an interactive
// host without ever blocking its main loop.
//
// A Job is either a detached shell command (KindCommand) or a worker goroutine
// (KindTask, KindOperation). Operations are user visible: their progress is
// put on the host's ProgressList and they count towards HasActiveOperations.
//
// Child exits are recorded by a Bridge from reaper goroutines. The host calls
// Supervisor.PollOnce periodically to reconcile those exits, surface captured
// errors through a Prompter and remove finished jobs. The job list is only
// ever touched inside the Bridge's suspension window.
//
// RunAndWaitForStatus, RunAndWaitForErrors and RunAndCapture run a command
// synchronously and are not tracked.
package background
