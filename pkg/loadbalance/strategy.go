package loadbalance

import "conduit/pkg/rpcerr"

// StrategyByName resolves one of spec §4.F's named strategies, matching
// the `load_balance` string pkg/rpcconfig.ClientOptions carries.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "round_robin":
		return RoundRobinStrategy{}, nil
	case "weighted_round_robin":
		return WeightedRoundRobinStrategy{}, nil
	case "random":
		return RandomStrategy{}, nil
	case "weighted_random":
		return WeightedRandomStrategy{}, nil
	case "p2c":
		return P2CStrategy{}, nil
	case "least_connection":
		return LeastConnectionStrategy{}, nil
	case "response_time":
		return ResponseTimeWeightedStrategy{}, nil
	case "consistent_hash":
		return ConsistentHashStrategy{Option: ConsistentHashOption{Replicas: 160}}, nil
	default:
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "unknown load_balance strategy: "+name)
	}
}
