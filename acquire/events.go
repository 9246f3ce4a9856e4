package acquire

// EventKind discriminates scheduler notifications.
type EventKind string

const (
	// EventTaskUpdated carries a snapshot of a task whose fields changed.
	EventTaskUpdated EventKind = "task_updated"
	// EventLog carries an operator-facing log line.
	EventLog EventKind = "log"
	// EventState carries a change of the overall acquisition state message.
	EventState EventKind = "state"
)

// Event is one ordered notification from the scheduler to the presentation
// loop. The worker is the main producer; command handlers may also emit.
// Task is a value copy — consumers never share memory with the worker.
type Event struct {
	Kind    EventKind `json:"kind"`
	Task    *Task     `json:"task,omitempty"`
	Message string    `json:"message,omitempty"`
}
