// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	InvalidRoomCodeError  = 3002 // Room code in the URL is malformed or does not match the token.
	RoomNotFoundError     = 3003 // Room no longer exists or the player is not seated in it.
	RoomClosedError       = 3004 // Room was closed while the client was connected.
	SlowConsumerError     = 3005 // Client fell too far behind on outbound messages.
)
