package room

import "github.com/wfunc/arcade/game"

// GameFactory builds the variant state for a new room. Tests swap it to seed boards.
type GameFactory func(t game.Type) (game.Game, error)

// DefaultGameFactory builds variants with game.New and the given options.
func DefaultGameFactory(opts ...game.Option) GameFactory {
	return func(t game.Type) (game.Game, error) {
		return game.New(t, opts...)
	}
}
