package task

// Task is one todo item. Every store operation is scoped by UserID; a task is
// never visible or mutable outside its owner.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Completed   bool
	DueDate     int64 // unix seconds, 0 when unset
	CreatedAt   int64
	UpdatedAt   int64
}

// Update carries the optional fields of an update operation. Nil means
// "leave unchanged".
type Update struct {
	Title       *string
	Description *string
	DueDate     *int64
}

const (
	StatusAll       = "all"
	StatusPending   = "pending"
	StatusCompleted = "completed"
)
