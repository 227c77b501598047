package domain

// Product identifies one adapter product (a protocol deployment on a chain).
type Product struct {
	ID      string // stable identifier, also the metadata cache file key
	Name    string
	ChainID int64
}
