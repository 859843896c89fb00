package domain

// TaskStatus is the lifecycle state of a task. It is owned by the caller.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is a unit of work submitted to the swarm.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Priority     float64    `json:"priority,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	AssignedTo   string     `json:"assignedTo,omitempty"`
	Status       TaskStatus `json:"status,omitempty"`
}
