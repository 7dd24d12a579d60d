package metrics

const (
	namespace = "skinbet"

	LabelGame   = "game"
	LabelReason = "reason"
	LabelKind   = "kind"

	GameCrash   = "crash"
	GameJackpot = "jackpot"
	GameRain    = "rain"
	GameChat    = "chat"
)

// Disconnect reasons
const (
	ReasonClosed  = "closed"
	ReasonError   = "error"
	ReasonTimeout = "timeout"
)
