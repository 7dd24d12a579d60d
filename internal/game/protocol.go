package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Inbound event names.
const (
	InAuthenticate = "authenticate"
	InCrashJoin    = "crash:join"
	InCrashCashout = "crash:cashout"
	InJackpotJoin  = "jackpot:join"
	InChatMessage  = "chat:message"
	InRainStart    = "rain:start"
	InRainJoin     = "rain:join"
	InPing         = "ping"
)

// Frames above this size are rejected before decoding.
const MaxFrameBytes = 8192

// Inbound is one decoded client command.
type Inbound interface {
	Event() string
}

type AuthenticateCmd struct {
	User UserSnapshot `validate:"required"`
}

type CrashJoinCmd struct {
	BetAmount decimal.Decimal `json:"betAmount"`
}

type CrashCashoutCmd struct{}

type JackpotJoinCmd struct {
	BetAmount decimal.Decimal `json:"betAmount"`
}

type ChatMessageCmd struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type RainStartCmd struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type RainJoinCmd struct {
	RainID string `json:"rainId" validate:"required,uuid"`
}

type PingCmd struct{}

func (AuthenticateCmd) Event() string { return InAuthenticate }
func (CrashJoinCmd) Event() string    { return InCrashJoin }
func (CrashCashoutCmd) Event() string { return InCrashCashout }
func (JackpotJoinCmd) Event() string  { return InJackpotJoin }
func (ChatMessageCmd) Event() string  { return InChatMessage }
func (RainStartCmd) Event() string    { return InRainStart }
func (RainJoinCmd) Event() string     { return InRainJoin }
func (PingCmd) Event() string         { return InPing }

// UnmarshalJSON accepts {"rainId": "..."} or a bare string.
func (c *RainJoinCmd) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &c.RainID)
	}
	type plain RainJoinCmd
	return json.Unmarshal(data, (*plain)(c))
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// DecodeError is a frame DecodeInbound turned away. Event is the type the
// frame claimed, empty when it could not be read. Err is player-safe.
type DecodeError struct {
	Event string
	Err   error
	// cause is the parser's own complaint, for logs only.
	cause error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Cause returns the underlying parser error, if any.
func (e *DecodeError) Cause() error { return e.cause }

// amountCommands carry a decimal that fails to parse as a bad amount rather
// than a malformed frame.
var amountCommands = map[string]bool{
	InCrashJoin:   true,
	InJackpotJoin: true,
	InRainStart:   true,
}

// DecodeInbound parses and validates a client frame. Failures are
// *DecodeError wrapping ErrMalformedMessage, or ErrInvalidAmount when an
// amount field does not parse.
func DecodeInbound(raw []byte) (Inbound, error) {
	if len(raw) > MaxFrameBytes {
		return nil, &DecodeError{Err: ErrMalformedMessage.detail("frame too large")}
	}

	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DecodeError{Err: ErrMalformedMessage.detail("invalid JSON"), cause: err}
	}

	var cmd Inbound
	var err error
	switch msg.Type {
	case InAuthenticate:
		var c AuthenticateCmd
		err = decodeData(msg.Data, &c.User)
		cmd = c
	case InCrashJoin:
		var c CrashJoinCmd
		err = decodeData(msg.Data, &c)
		cmd = c
	case InCrashCashout:
		cmd = CrashCashoutCmd{}
	case InJackpotJoin:
		var c JackpotJoinCmd
		err = decodeData(msg.Data, &c)
		cmd = c
	case InChatMessage:
		var c ChatMessageCmd
		err = decodeData(msg.Data, &c)
		cmd = c
	case InRainStart:
		var c RainStartCmd
		err = decodeData(msg.Data, &c)
		cmd = c
	case InRainJoin:
		var c RainJoinCmd
		err = decodeData(msg.Data, &c)
		cmd = c
	case InPing:
		cmd = PingCmd{}
	default:
		return nil, &DecodeError{Event: msg.Type, Err: ErrMalformedMessage.detail("unknown event %q", msg.Type)}
	}
	if err != nil {
		if amountCommands[msg.Type] {
			return nil, &DecodeError{Event: msg.Type, Err: ErrInvalidAmount, cause: err}
		}
		return nil, &DecodeError{Event: msg.Type, Err: ErrMalformedMessage.detail("invalid %s data", msg.Type), cause: err}
	}

	if err := getValidator().Struct(cmd); err != nil {
		return nil, &DecodeError{Event: msg.Type, Err: ErrMalformedMessage.detail("%s", describeValidation(err)), cause: err}
	}
	return cmd, nil
}

func decodeData(data json.RawMessage, into any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, into)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid message"
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "uuid":
			parts = append(parts, field+" is not a valid id")
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, ", ")
}
