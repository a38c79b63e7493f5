package domain

type RoomToken string

// Room is the local session's membership in one room.
type Room struct {
	Token   RoomToken
	LocalID UserID
}
