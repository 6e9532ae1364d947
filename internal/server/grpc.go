// Package server exposes live games over gRPC.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/magefree/battle-server-go/internal/session"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "battle.v1.BattleService"

// Full method names.
const (
	MethodCreateGame         = "/" + ServiceName + "/CreateGame"
	MethodAddAttack          = "/" + ServiceName + "/AddAttack"
	MethodStartCombat        = "/" + ServiceName + "/StartCombat"
	MethodListPendingBattles = "/" + ServiceName + "/ListPendingBattles"
	MethodFightBattle        = "/" + ServiceName + "/FightBattle"
	MethodEndCombat          = "/" + ServiceName + "/EndCombat"
	MethodSaveGame           = "/" + ServiceName + "/SaveGame"
	MethodLoadGame           = "/" + ServiceName + "/LoadGame"
	MethodCancelBattle       = "/" + ServiceName + "/CancelBattle"
)

// AdminMethods are the calls guarded by AdminInterceptor.
var AdminMethods = []string{MethodCancelBattle, MethodLoadGame}

// BattleServiceServer is the BattleService contract. Requests and responses are
// google.protobuf.Struct messages.
type BattleServiceServer interface {
	CreateGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddAttack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartCombat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingBattles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FightBattle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndCombat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBattle(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(BattleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call rpc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(BattleServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*structpb.Struct))
		})
	}
}

var battleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BattleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateGame", Handler: unaryHandler(MethodCreateGame, BattleServiceServer.CreateGame)},
		{MethodName: "AddAttack", Handler: unaryHandler(MethodAddAttack, BattleServiceServer.AddAttack)},
		{MethodName: "StartCombat", Handler: unaryHandler(MethodStartCombat, BattleServiceServer.StartCombat)},
		{MethodName: "ListPendingBattles", Handler: unaryHandler(MethodListPendingBattles, BattleServiceServer.ListPendingBattles)},
		{MethodName: "FightBattle", Handler: unaryHandler(MethodFightBattle, BattleServiceServer.FightBattle)},
		{MethodName: "EndCombat", Handler: unaryHandler(MethodEndCombat, BattleServiceServer.EndCombat)},
		{MethodName: "SaveGame", Handler: unaryHandler(MethodSaveGame, BattleServiceServer.SaveGame)},
		{MethodName: "LoadGame", Handler: unaryHandler(MethodLoadGame, BattleServiceServer.LoadGame)},
		{MethodName: "CancelBattle", Handler: unaryHandler(MethodCancelBattle, BattleServiceServer.CancelBattle)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "battle/v1/battle.proto",
}

// RegisterBattleServiceServer registers srv on s.
func RegisterBattleServiceServer(s grpc.ServiceRegistrar, srv BattleServiceServer) {
	s.RegisterService(&battleServiceDesc, srv)
}

// MapLoader builds the world of a new game.
type MapLoader func() (*world.State, error)

// battleServer implements BattleServiceServer over a session manager.
type battleServer struct {
	games     *session.Manager
	loadMap   MapLoader
	logger    *zap.Logger
	serverVer string
}

// NewBattleServer creates the BattleService implementation.
func NewBattleServer(games *session.Manager, loadMap MapLoader, serverVersion string, logger *zap.Logger) BattleServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &battleServer{games: games, loadMap: loadMap, logger: logger, serverVer: serverVersion}
}

// CreateGame starts a game on a fresh map. Request: {player}.
func (s *battleServer) CreateGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	player := stringField(req, "player")
	if player == "" {
		return nil, status.Error(codes.InvalidArgument, "player is required")
	}
	st, err := s.loadMap()
	if err != nil {
		s.logger.Error("failed to load map", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to load map")
	}
	if st.Player(player) == nil {
		return nil, status.Errorf(codes.InvalidArgument, "unknown player %q", player)
	}
	g, err := s.games.CreateGame(st, player)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("game created over gRPC",
		zap.String("game_id", g.ID),
		zap.String("player", player),
		zap.String("host", extractHostFromContext(ctx)),
	)
	return newStruct(map[string]any{"game_id": g.ID, "server_version": s.serverVer})
}

// AddAttack registers an attack. Request: {game_id, route: [territory...], units?: [id...], bombing?}.
func (s *battleServer) AddAttack(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g, err := s.game(req)
	if err != nil {
		return nil, err
	}
	route := stringList(req, "route")
	if len(route) < 2 {
		return nil, status.Error(codes.InvalidArgument, "route needs a start and an end")
	}
	units, err := g.AddAttack(world.NewRoute(route...), stringList(req, "units"), boolField(req, "bombing"), nil)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"units": units})
}

// StartCombat runs the automatic part of the combat phase. Request: {game_id}.
func (s *battleServer) StartCombat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := stringField(req, "game_id")
	if err := s.games.StartCombat(ctx, gameID); err != nil {
		return nil, toStatus(err)
	}
	return s.view(gameID)
}

// ListPendingBattles returns the game view with its pending battles. Request: {game_id}.
func (s *battleServer) ListPendingBattles(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.game(req); err != nil {
		return nil, err
	}
	return s.view(stringField(req, "game_id"))
}

// FightBattle fights one battle. Request: {game_id, territory, type?, bombing?}.
func (s *battleServer) FightBattle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := stringField(req, "game_id")
	territory := stringField(req, "territory")
	if territory == "" {
		return nil, status.Error(codes.InvalidArgument, "territory is required")
	}
	typ, err := battleType(req)
	if err != nil {
		return nil, err
	}
	bombing := boolField(req, "bombing") || typ.IsBombingRun()
	msg, err := s.games.FightBattle(ctx, gameID, territory, bombing, typ)
	if err != nil {
		return nil, toStatus(err)
	}
	if msg != "" {
		return nil, status.Error(codes.FailedPrecondition, msg)
	}
	return s.view(gameID)
}

// EndCombat closes the combat phase. Request: {game_id}.
func (s *battleServer) EndCombat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := stringField(req, "game_id")
	if err := s.games.EndCombat(ctx, gameID); err != nil {
		return nil, toStatus(err)
	}
	return s.view(gameID)
}

// SaveGame stores a snapshot. Request: {game_id}.
func (s *battleServer) SaveGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sum, err := s.games.SaveGame(ctx, stringField(req, "game_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"checksum": sum.Hash, "version": sum.Version})
}

// LoadGame restores a game from its snapshot. Request: {game_id}.
func (s *battleServer) LoadGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := stringField(req, "game_id")
	if _, err := s.games.LoadGame(ctx, gameID); err != nil {
		return nil, toStatus(err)
	}
	return s.view(gameID)
}

// CancelBattle ends a battle without an outcome. Request: {game_id, territory, type?}.
func (s *battleServer) CancelBattle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := stringField(req, "game_id")
	typ, err := battleType(req)
	if err != nil {
		return nil, err
	}
	if err := s.games.CancelBattle(ctx, gameID, stringField(req, "territory"), typ); err != nil {
		return nil, toStatus(err)
	}
	return s.view(gameID)
}

func (s *battleServer) game(req *structpb.Struct) (*session.Game, error) {
	gameID := stringField(req, "game_id")
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id is required")
	}
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "game %s not found", gameID)
	}
	return g, nil
}

func (s *battleServer) view(gameID string) (*structpb.Struct, error) {
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "game %s not found", gameID)
	}
	return gameView(g.Snapshot())
}

func gameView(snap session.GameSnapshot) (*structpb.Struct, error) {
	battles := make(map[string]any, len(snap.Battles))
	for typ, sites := range snap.Battles {
		battles[typ] = toAnyList(sites)
	}
	lost := make(map[string]any, len(snap.TUVLost))
	for p, v := range snap.TUVLost {
		lost[p] = v
	}
	return newStruct(map[string]any{
		"game_id":  snap.ID,
		"player":   snap.Player,
		"state":    snap.State,
		"battles":  battles,
		"current":  snap.Current,
		"tuv_lost": lost,
	})
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrGameNotFound), errors.Is(err, session.ErrNoBattle):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrTooManyGames):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, session.ErrNoStore):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, battle.ErrSuspended):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, battle.ErrInvariant):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func battleType(req *structpb.Struct) (battle.BattleType, error) {
	name := stringField(req, "type")
	if name == "" {
		return battle.TypeNormal, nil
	}
	typ, ok := battle.ParseBattleType(name)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "unknown battle type %q", name)
	}
	return typ, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func stringList(req *structpb.Struct, key string) []string {
	values := req.GetFields()[key].GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

func toAnyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	for k, v := range fields {
		if list, ok := v.([]string); ok {
			fields[k] = toAnyList(list)
		}
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// Helper function to extract host from context
func extractHostFromContext(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
