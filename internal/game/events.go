package game

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts and multipliers go on the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Outbound event names.
const (
	EventAuthenticated = "authenticated"
	EventUsersCount    = "users:count"
	EventBalance       = "balance:update"
	EventError         = "error"
	EventPong          = "pong"

	EventCrashState        = "crash:state"
	EventCrashGameStarted  = "crash:game-started"
	EventCrashUpdate       = "crash:update"
	EventCrashCrashed      = "crash:crashed"
	EventCrashBet          = "crash:bet"
	EventCrashBetConfirmed = "crash:bet-confirmed"
	EventCrashCashout      = "crash:cashout"
	EventCrashCashoutOK    = "crash:cashout-success"
	EventCrashError        = "crash:error"

	EventJackpotState        = "jackpot:state"
	EventJackpotRoundStarted = "jackpot:round-started"
	EventJackpotEntry        = "jackpot:entry"
	EventJackpotTimeUpdate   = "jackpot:time-update"
	EventJackpotWinner       = "jackpot:winner"
	EventJackpotError        = "jackpot:error"

	EventRainStarted   = "rain:started"
	EventRainJoined    = "rain:joined"
	EventRainCompleted = "rain:completed"
	EventRainError     = "rain:error"

	EventChatMessage = "chat:message"
	EventChatHistory = "chat:history"
	EventChatError   = "chat:error"
)

// WSMessage is the frame sent in both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds an outbound frame.
func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: event, Data: payload})
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type AuthenticatedPayload struct {
	Success bool          `json:"success"`
	User    *UserSnapshot `json:"user,omitempty"`
	Message string        `json:"message,omitempty"`
}

type UsersCountPayload struct {
	Count int `json:"count"`
}

type BalancePayload struct {
	Balance decimal.Decimal `json:"balance"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type CrashStartedPayload struct {
	RoundID       string    `json:"roundId"`
	BettingTime   int64     `json:"bettingTime"`
	BettingEndsAt time.Time `json:"bettingEndsAt"`
}

type CrashUpdatePayload struct {
	Multiplier decimal.Decimal `json:"multiplier"`
	Timestamp  int64           `json:"timestamp"`
}

type CrashCrashedPayload struct {
	RoundID    string          `json:"roundId"`
	CrashPoint decimal.Decimal `json:"crashPoint"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Bets       []CrashBet      `json:"bets"`
}

type CrashBetPayload struct {
	RoundID   string          `json:"roundId"`
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Avatar    string          `json:"avatar"`
	BetAmount decimal.Decimal `json:"betAmount"`
}

type CrashBetConfirmedPayload struct {
	RoundID   string          `json:"roundId"`
	BetAmount decimal.Decimal `json:"betAmount"`
	Balance   decimal.Decimal `json:"balance"`
}

type CrashCashoutPayload struct {
	RoundID    string          `json:"roundId"`
	UserID     string          `json:"userId"`
	Username   string          `json:"username"`
	Multiplier decimal.Decimal `json:"multiplier"`
	WinAmount  decimal.Decimal `json:"winAmount"`
}

type CrashCashoutSuccessPayload struct {
	Multiplier decimal.Decimal `json:"multiplier"`
	WinAmount  decimal.Decimal `json:"winAmount"`
	Balance    decimal.Decimal `json:"balance"`
}

type JackpotStartedPayload struct {
	RoundID  string `json:"roundId"`
	TimeLeft int    `json:"timeLeft"`
}

type JackpotEntryPayload struct {
	RoundID      string          `json:"roundId"`
	Entry        JackpotEntry    `json:"entry"`
	TotalPot     decimal.Decimal `json:"totalPot"`
	TotalTickets int64           `json:"totalTickets"`
}

type JackpotTimePayload struct {
	TimeLeft int `json:"timeLeft"`
}

type JackpotWinnerPayload struct {
	RoundID       string          `json:"roundId"`
	Winner        JackpotEntry    `json:"winner"`
	WinningTicket int64           `json:"winningTicket"`
	TotalTickets  int64           `json:"totalTickets"`
	TotalPot      decimal.Decimal `json:"totalPot"`
	Payout        decimal.Decimal `json:"payout"`
	// Paid is false when the wallet refused the credit.
	Paid          bool            `json:"paid"`
}

type RainStartedPayload struct {
	RainID       string          `json:"rainId"`
	HostID       string          `json:"hostId"`
	HostUsername string          `json:"hostUsername"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Duration     int             `json:"duration"`
	EndsAt       time.Time       `json:"endsAt"`
}

type RainJoinedPayload struct {
	RainID       string `json:"rainId"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Participants int    `json:"participants"`
}

type RainCompletedPayload struct {
	RainID      string          `json:"rainId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Share       decimal.Decimal `json:"share"`
	Recipients  []RainRecipient `json:"recipients"`
	Refunded    decimal.Decimal `json:"refunded"`
	// Unpaid sums the shares and refund the wallet failed to credit.
	Unpaid      decimal.Decimal `json:"unpaid"`
}

type RainRecipient struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Paid     bool   `json:"paid"`
}
