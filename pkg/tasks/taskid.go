package tasks

import (
	"fmt"
	"time"
)

// taskIDAttempts bounds regeneration after a task_id collision
const taskIDAttempts = 5

const taskIDModulus = 1_000_000

// taskIDFor returns the human id for a task created at t. Each retry moves
// the suffix forward one millisecond.
func taskIDFor(t time.Time, attempt int) string {
	suffix := (t.UnixMilli() + int64(attempt)) % taskIDModulus
	return fmt.Sprintf("TASK-%06d", suffix)
}
