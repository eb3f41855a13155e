package orderprotocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/orderprotocol"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/request"
	"github.com/stratum-smr/stratum/timeouts"
)

func TestInitializerReceivesAllCollaborators(t *testing.T) {
	pre, err := request.NewProcessor(8, 2, func(op string) ([]byte, error) { return []byte(op), nil })
	require.NoError(t, err)
	executor := exec.NewHandle[string](1)
	tmo := timeouts.New(1)
	t.Cleanup(tmo.Stop)

	args := orderprotocol.OrderingProtocolArgs[string, payload]{
		Timeouts:      tmo,
		Executor:      executor,
		PreProcessor:  pre,
		Requests:      pre.Output(),
		InitialQuorum: []quorum.NodeID{1, 2, 3, 4},
	}

	var captured orderprotocol.OrderingProtocolArgs[string, payload]
	init := orderprotocol.Initializer[int, meta, payload, string](
		func(cfg int, got orderprotocol.OrderingProtocolArgs[string, payload]) (orderprotocol.OrderingProtocol[meta, payload, string], error) {
			require.Equal(t, 42, cfg)
			captured = got
			return nil, nil
		},
	)

	_, err = init(42, args)
	require.NoError(t, err)
	require.NotNil(t, captured.Executor)
	require.NotNil(t, captured.PreProcessor)
	require.NotNil(t, captured.Requests)
	require.Equal(t, []quorum.NodeID{1, 2, 3, 4}, captured.InitialQuorum)
}
