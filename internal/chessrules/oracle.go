// Package chessrules is the legality oracle: it replays a game from its UCI
// history, validates the next move and reports game-ending positions.
package chessrules

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/match"
)

type Oracle struct{}

func New() Oracle { return Oracle{} }

func (Oracle) StartPosition() string { return nchess.NewGame().FEN() }

// Apply accepts move in UCI form, falling back to SAN.
func (Oracle) Apply(ctx context.Context, history []string, move string) (match.Verdict, error) {
	game, err := replay(history)
	if err != nil {
		return match.Verdict{}, err
	}
	pos := game.Position()
	raw := strings.TrimSpace(move)
	if raw == "" {
		return match.Verdict{}, match.ErrIllegalMove
	}

	var played *nchess.Move
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
		if err := game.Move(mv, nil); err != nil {
			return match.Verdict{}, match.ErrIllegalMove
		}
		played = lastMove(game)
	} else {
		if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return match.Verdict{}, match.ErrIllegalMove
		}
		played = lastMove(game)
	}
	if played == nil {
		return match.Verdict{}, match.ErrIllegalMove
	}

	v := match.Verdict{
		UCI:      played.String(),
		SAN:      nchess.AlgebraicNotation{}.Encode(pos, played),
		Position: game.FEN(),
	}
	v.End, v.Winner, err = ending(game)
	if err != nil {
		return match.Verdict{}, err
	}
	return v, nil
}

// Position returns the FEN reached after history.
func Position(history []string) (string, error) {
	game, err := replay(history)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// SAN converts a UCI history into SAN, move by move.
func SAN(history []string) ([]string, error) {
	game := nchess.NewGame()
	out := make([]string, 0, len(history))
	for i, uci := range history {
		pos := game.Position()
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d (%s): %w", i+1, uci, err)
		}
		mv := lastMove(game)
		if mv == nil {
			return nil, fmt.Errorf("replay ply %d (%s): no move recorded", i+1, uci)
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, mv))
	}
	return out, nil
}

func replay(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, uci := range history {
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d (%s): %w", i+1, uci, err)
		}
	}
	return game, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

// ending maps the library's outcome to an end reason and, for decisive games, the winning side.
func ending(game *nchess.Game) (match.EndReason, match.Side, error) {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return match.EndCheckmate, match.SideA, nil
	case nchess.BlackWon:
		return match.EndCheckmate, match.SideB, nil
	case nchess.Draw:
		reason, err := drawReason(game.Method())
		return reason, "", err
	}
	return "", "", nil
}

func drawReason(method nchess.Method) (match.EndReason, error) {
	switch method {
	case nchess.Stalemate:
		return match.EndStalemate, nil
	case nchess.InsufficientMaterial:
		return match.EndInsufficientMaterial, nil
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return match.EndRepetition, nil
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return match.EndMoveRule, nil
	case nchess.DrawOffer:
		return match.EndDrawAgreement, nil
	}
	return "", fmt.Errorf("unmapped draw method %s", method)
}
