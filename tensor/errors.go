package tensor

import "fmt"

// MaxRank is the highest rank a tensor may reach.
const MaxRank = 30

// A RankOverflowError is returned when an operation would build a tensor of rank above MaxRank.
type RankOverflowError struct {
	Rank int
}

func (e *RankOverflowError) Error() string {
	return fmt.Sprintf("requires tensor rank %d above %d", e.Rank, MaxRank)
}

// An OutOfMemoryError is returned when the backend cannot allocate an array.
type OutOfMemoryError struct {
	Entries int64 // Number of entries that were requested
	Limit   int64 // Highest number of entries allowed
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("cannot allocate %d entries, limit is %d", e.Entries, e.Limit)
}
