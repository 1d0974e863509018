package topics

const (
	// Canal único do torneio; todos os clientes assinam o mesmo tópico
	Tournament = "tournament"
)

// Nomes de eventos publicados no tópico Tournament
const (
	EventNewGame        = "new-game"
	EventNewBet         = "new-bet"
	EventUserUpdate     = "user-update"
	EventPlatformUpdate = "platform-update"
)
