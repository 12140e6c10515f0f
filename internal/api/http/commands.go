package http

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/immxrtalbeast/clipguess/internal/service"
	"github.com/segmentio/encoding/json"
)

type profileCommand struct {
	Username     string `json:"username" validate:"required,max=32"`
	ExternalName string `json:"externalName" validate:"max=64"`
	AvatarURL    string `json:"avatarUrl"`
}

func (p profileCommand) input() service.ProfileInput {
	return service.ProfileInput{Username: p.Username, ExternalName: p.ExternalName, AvatarURL: p.AvatarURL}
}

type roomCommand struct {
	Code string `json:"code" validate:"required,max=16"`
}

type joinRoomCommand struct {
	roomCommand
	profileCommand
}

type importLikesCommand struct {
	roomCommand
	Text string `json:"text" validate:"required,max=1000000"`
}

type startGameCommand struct {
	roomCommand
	TotalRounds int `json:"totalRounds" validate:"gte=0,lte=1000"`
}

type voteCommand struct {
	roomCommand
	TargetPlayerID string `json:"targetPlayerId" validate:"required,max=64"`
	RoundIndex     int    `json:"roundIndex" validate:"gte=0"`
}

type videoFailedCommand struct {
	roomCommand
	RoundIndex int    `json:"roundIndex" validate:"gte=0"`
	VideoURL   string `json:"videoUrl" validate:"max=2048"`
}

type rejoinCommand struct {
	roomCommand
	PlayerID string `json:"playerId" validate:"required,max=64"`
}

// command decodes and validates the payload of one command type before
// running it.
func command[T any](v *validator.Validate, run func(ctx context.Context, sessionID string, cmd T) (any, error)) commandHandler {
	return func(ctx context.Context, sessionID string, data json.RawMessage) (any, error) {
		var cmd T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &cmd); err != nil {
				return nil, service.ErrInvalidInput.WithMessage("malformed payload")
			}
		}
		if err := v.Struct(cmd); err != nil {
			return nil, validationError(err)
		}
		return run(ctx, sessionID, cmd)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return service.ErrInvalidInput
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return service.ErrInvalidInput.WithMessage("invalid " + verrs[0].Field()).WithDetails(fields)
}

func (c *GameController) routes() map[string]commandHandler {
	g := c.game
	v := c.validate

	return map[string]commandHandler{
		"create_room": command(v, func(ctx context.Context, sid string, cmd profileCommand) (any, error) {
			return g.CreateRoom(ctx, sid, cmd.input())
		}),
		"join_room": command(v, func(ctx context.Context, sid string, cmd joinRoomCommand) (any, error) {
			return g.JoinRoom(ctx, sid, cmd.Code, cmd.profileCommand.input())
		}),
		"create_import_token": command(v, func(ctx context.Context, sid string, cmd roomCommand) (any, error) {
			token, err := g.CreateImportToken(ctx, sid, cmd.Code)
			if err != nil {
				return nil, err
			}
			return map[string]string{"token": token}, nil
		}),
		"import_likes": command(v, func(ctx context.Context, sid string, cmd importLikesCommand) (any, error) {
			n, err := g.ImportLikes(ctx, sid, cmd.Code, cmd.Text)
			if err != nil {
				return nil, err
			}
			return map[string]int{"count": n}, nil
		}),
		"start_game": command(v, func(ctx context.Context, sid string, cmd startGameCommand) (any, error) {
			n, err := g.StartGame(ctx, sid, cmd.Code, cmd.TotalRounds)
			if err != nil {
				return nil, err
			}
			return map[string]int{"totalRounds": n}, nil
		}),
		"preload_done": command(v, func(_ context.Context, sid string, cmd roomCommand) (any, error) {
			return struct{}{}, g.PreloadDone(sid, cmd.Code)
		}),
		"submit_vote": command(v, func(_ context.Context, sid string, cmd voteCommand) (any, error) {
			return struct{}{}, g.SubmitVote(sid, cmd.Code, cmd.TargetPlayerID, cmd.RoundIndex)
		}),
		"request_next_round": command(v, func(_ context.Context, sid string, cmd roomCommand) (any, error) {
			return struct{}{}, g.RequestNextRound(sid, cmd.Code)
		}),
		"skip_round": command(v, func(_ context.Context, sid string, cmd roomCommand) (any, error) {
			return struct{}{}, g.SkipRound(sid, cmd.Code)
		}),
		"video_play_failed": command(v, func(_ context.Context, sid string, cmd videoFailedCommand) (any, error) {
			g.VideoPlayFailed(sid, cmd.Code, cmd.RoundIndex, cmd.VideoURL)
			return struct{}{}, nil
		}),
		"rejoin_room": command(v, func(ctx context.Context, sid string, cmd rejoinCommand) (any, error) {
			return g.Rejoin(ctx, sid, cmd.Code, cmd.PlayerID)
		}),
		"leave_room": command(v, func(_ context.Context, sid string, cmd roomCommand) (any, error) {
			return struct{}{}, g.Leave(sid, cmd.Code)
		}),
	}
}
