package models

// User é o participante do torneio. Version é atribuída pelo store a cada escrita
// e usada pelos clientes para descartar atualizações antigas.
type User struct {
	ID      string  `json:"id" validate:"required"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	IsAdmin bool    `json:"isAdmin"`
	Version int64   `json:"version"`
}

// StartingBalance é o saldo do usuário sintetizado no primeiro acesso
const StartingBalance = 1000
