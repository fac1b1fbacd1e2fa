package state

// RoomContext is the view of a room the lifecycle needs. It keeps state free of
// an import on the room package.
type RoomContext interface {
	GetID() string
}
