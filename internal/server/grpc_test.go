package server

import (
	"context"
	"net"
	"testing"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/session"
	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const adminPassword = "hunter2"

type testServer struct {
	games *session.Manager
	conn  *grpc.ClientConn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	games := session.NewManager(session.Options{}, logger)
	loadMap := func() (*world.State, error) { return world.LoadMap("testdata/eastern-front.yaml") }

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(ChainUnaryInterceptors(
		RecoveryInterceptor(logger),
		LoggingInterceptor(logger),
		AdminInterceptor(string(hash), AdminMethods...),
	)))
	RegisterBattleServiceServer(srv, NewBattleServer(games, loadMap, "test", logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testServer{games: games, conn: conn}
}

func (s *testServer) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *testServer) createGame(t *testing.T) string {
	t.Helper()
	resp, err := s.call(context.Background(), MethodCreateGame, map[string]any{"player": "Germans"})
	require.NoError(t, err)
	id := resp.GetFields()["game_id"].GetStringValue()
	require.NotEmpty(t, id)
	return id
}

func admin(password string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), AdminPasswordHeader, password)
}

func TestBattleService_FightsAnAttack(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := s.createGame(t)
	g, ok := s.games.GetGame(id)
	require.True(t, ok)
	g.SetDice(dice.NewScriptedSource(0, 5))

	resp, err := s.call(ctx, MethodAddAttack, map[string]any{"game_id": id, "route": []any{"Germany", "Poland"}})
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["units"].GetListValue().GetValues(), 1)

	view, err := s.call(ctx, MethodListPendingBattles, map[string]any{"game_id": id})
	require.NoError(t, err)
	battles := view.GetFields()["battles"].GetStructValue().AsMap()
	assert.Equal(t, map[string]any{"Battle": []any{"Poland"}}, battles)

	view, err = s.call(ctx, MethodStartCombat, map[string]any{"game_id": id})
	require.NoError(t, err)
	assert.Equal(t, "WAITING", view.GetFields()["state"].GetStringValue())
	assert.Empty(t, view.GetFields()["battles"].GetStructValue().GetFields())
	assert.Equal(t, float64(3), view.GetFields()["tuv_lost"].GetStructValue().GetFields()["Russians"].GetNumberValue())
	assert.Equal(t, "Germans", g.World().Territory("Poland").Owner)

	view, err = s.call(ctx, MethodEndCombat, map[string]any{"game_id": id})
	require.NoError(t, err)
	assert.Equal(t, "PHASE_OVER", view.GetFields()["state"].GetStringValue())
}

func TestBattleService_StatusCodes(t *testing.T) {
	s := newTestServer(t)
	id := s.createGame(t)
	_, err := s.call(context.Background(), MethodAddAttack, map[string]any{"game_id": id, "route": []any{"Germany", "Poland"}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		req    map[string]any
		want   codes.Code
	}{
		{"unknown player", MethodCreateGame, map[string]any{"player": "Italians"}, codes.InvalidArgument},
		{"missing player", MethodCreateGame, map[string]any{}, codes.InvalidArgument},
		{"unknown game", MethodStartCombat, map[string]any{"game_id": "nope"}, codes.NotFound},
		{"missing game id", MethodListPendingBattles, map[string]any{}, codes.InvalidArgument},
		{"short route", MethodAddAttack, map[string]any{"game_id": id, "route": []any{"Poland"}}, codes.InvalidArgument},
		{"no battle there", MethodFightBattle, map[string]any{"game_id": id, "territory": "Ukraine"}, codes.FailedPrecondition},
		{"unknown battle type", MethodFightBattle, map[string]any{"game_id": id, "territory": "Poland", "type": "Skirmish"}, codes.InvalidArgument},
		{"no snapshot store", MethodSaveGame, map[string]any{"game_id": id}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.call(context.Background(), tt.method, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestBattleService_CancelBattleNeedsAdmin(t *testing.T) {
	s := newTestServer(t)
	id := s.createGame(t)
	_, err := s.call(context.Background(), MethodAddAttack, map[string]any{"game_id": id, "route": []any{"Germany", "Poland"}})
	require.NoError(t, err)
	req := map[string]any{"game_id": id, "territory": "Poland"}

	_, err = s.call(context.Background(), MethodCancelBattle, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.call(admin("wrong"), MethodCancelBattle, req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	view, err := s.call(admin(adminPassword), MethodCancelBattle, req)
	require.NoError(t, err)
	assert.Empty(t, view.GetFields()["battles"].GetStructValue().GetFields())

	_, err = s.call(admin(adminPassword), MethodCancelBattle, req)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.ResourceExhausted, status.Code(toStatus(session.ErrTooManyGames)))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(assert.AnError)))
}
