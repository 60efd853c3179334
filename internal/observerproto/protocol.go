package observerproto

import (
	"encoding/json"

	"factorygrid.ai/internal/sim/factory"
)

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWelcome   = "WELCOME"
	TypeState     = "STATE"
	TypeCommand   = "CMD"
	TypeResult    = "RESULT"
)

const (
	ActionPlace  = factory.EditPlace
	ActionRotate = factory.EditRotate
	ActionRemove = factory.EditRemove
)

// Protocol-level result codes; engine refusals use factory.Code.
const (
	CodeBadRequest  = "E_BAD_REQUEST"
	CodeRateLimited = "E_RATE_LIMITED"
)

type BaseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMsg, error) {
	var base BaseMsg
	err := json.Unmarshal(b, &base)
	return base, err
}

// Client -> Server. First message on the connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Actor names the client in the edit audit log.
	Actor string `json:"actor,omitempty"`
}

// Server -> Client, once after a valid SUBSCRIBE; also served by the bootstrap endpoint.
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id,omitempty"`
	Tick            uint64         `json:"tick"`
	Grid            GridParams     `json:"grid"`
	Catalog         []CatalogEntry `json:"catalog"`
	CatalogDigest   string         `json:"catalog_digest"`
}

type GridParams struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FrameRateHz    int     `json:"frame_rate_hz"`
	TicksPerSecond float64 `json:"ticks_per_second"`
}

type CatalogEntry struct {
	Kind        string `json:"kind"`
	Role        string `json:"role"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Buildable   bool   `json:"buildable"`
}

// Server -> Client. Full grid state, pushed every N frames.
type StateMsg struct {
	Type            string                 `json:"type"`
	ProtocolVersion string                 `json:"protocol_version"`
	Tick            uint64                 `json:"tick"`
	Cells           []factory.CellSnapshot `json:"cells"`
	Exported        int                    `json:"exported,omitempty"`
	Delivered       int                    `json:"delivered,omitempty"`
	FellOff         int                    `json:"fell_off,omitempty"`
}

// Client -> Server. One grid edit.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Action          string `json:"action"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Kind            string `json:"kind,omitempty"`
	// Direction is optional for PLACE; empty means the default facing.
	Direction string `json:"direction,omitempty"`
}

// Server -> Client. Outcome of one CMD, matched by ID.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
