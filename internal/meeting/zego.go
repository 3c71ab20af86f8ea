package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"go.uber.org/zap"
)

// roomPayload is the token04 room privilege payload. See ZEGOCLOUD token04 docs.
type roomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// Zego issues ZEGOCLOUD token04 room tokens for both consultation participants.
// Rooms are created on first login, so reserving means minting valid tokens.
type Zego struct {
	appID        uint32
	serverSecret string
	grace        time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewZego validates the credentials from the ZEGOCLOUD console. serverSecret must be 32 characters.
func NewZego(appID uint32, serverSecret string, grace time.Duration, logger *zap.Logger) (*Zego, error) {
	if appID == 0 || serverSecret == "" {
		return nil, fmt.Errorf("zego: app_id and server_secret required")
	}
	if len(serverSecret) != 32 {
		return nil, fmt.Errorf("zego: server_secret must be 32 characters")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zego{appID: appID, serverSecret: serverSecret, grace: grace, now: time.Now, logger: logger}, nil
}

// Reserve implements Reserver. Tokens stay valid until the slot ends plus the grace period.
func (z *Zego) Reserve(ctx context.Context, req Request) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	expires := req.EndsAt.Add(z.grace)
	ttl := int64(expires.Sub(z.now()).Seconds())
	if ttl <= 0 {
		return Reservation{}, fmt.Errorf("%w: session already over", ErrUnavailable)
	}
	room := req.RoomID()
	coach, err := z.token(room, req.CoachID.String(), ttl)
	if err != nil {
		return Reservation{}, err
	}
	employee, err := z.token(room, req.EmployeeID.String(), ttl)
	if err != nil {
		return Reservation{}, err
	}
	z.logger.Debug("meeting room reserved", zap.String("room_id", room), zap.Int64("ttl_sec", ttl))
	return Reservation{RoomID: room, CoachToken: coach, EmployeeToken: employee, ExpiresAt: expires}, nil
}

// Release implements Reserver. Issued tokens expire on their own.
func (z *Zego) Release(_ context.Context, roomID string) error {
	z.logger.Debug("meeting room released", zap.String("room_id", roomID))
	return nil
}

// Both participants may publish in a one-to-one consultation.
func (z *Zego) token(roomID, userID string, ttl int64) (string, error) {
	payload := roomPayload{
		RoomID: roomID,
		Privilege: map[int]int{
			token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
			token04.PrivilegeKeyPublish: token04.PrivilegeEnable,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("zego: marshal payload: %w", err)
	}
	tok, err := token04.GenerateToken04(z.appID, userID, z.serverSecret, ttl, string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return tok, nil
}
