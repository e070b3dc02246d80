package domain

// User is an account in the read model. Login is stored lowercase so lookups
// are case-insensitive at the store layer. Department doubles as the user's
// board scope tag.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Login        string `json:"login"`
	Department   string `json:"department"`
	PasswordHash string `json:"-"`
}
