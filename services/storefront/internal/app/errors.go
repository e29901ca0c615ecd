package app

import "errors"

var (
	ErrUnknownBook = errors.New("book not found")
	// ErrNothingToAdd is returned when neither a book id nor a title was given.
	ErrNothingToAdd = errors.New("bookId or title required")
)
