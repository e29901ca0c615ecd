package cart

import "errors"

var (
	ErrTitleRequired    = errors.New("title required")
	ErrCartEmpty        = errors.New("cart is empty")
	ErrQuantityTooLarge = errors.New("quantity too large")
)
