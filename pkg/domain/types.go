package domain

import "time"

// CartLine is one title in the cart. Quantity is always >= 1 once persisted.
type CartLine struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogItem is a purchasable book. Items are compiled in and never stored.
type CatalogItem struct {
	ID     int    `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
	Date   string `json:"date" yaml:"date"`
	Price  int    `json:"price" yaml:"price"`
	Image  string `json:"image" yaml:"image"`
}

type SessionState string

const (
	SessionAnonymous     SessionState = "anonymous"
	SessionAuthenticated SessionState = "authenticated"
)

// Screen names a navigation destination gated by session state.
type Screen string

const (
	ScreenLogin    Screen = "login"
	ScreenRegister Screen = "register"
	ScreenCatalog  Screen = "catalog"
	ScreenCart     Screen = "cart"
)
