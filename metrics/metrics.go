package metrics

import (
	"time"

	rpcMetrics "github.com/filecoin-project/go-jsonrpc/metrics"
	"github.com/ipfs-force-community/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Global Tags
var (
	OriginKey, _  = tag.NewKey("origin")
	MsgTypeKey, _ = tag.NewKey("msg_type")
	MethodKey, _  = tag.NewKey("method")
	ChainKey, _   = tag.NewKey("chain")
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

var (
	// tab channels
	TabConnections = metrics.NewInt64("tab/conn_num", "Live tab connection count", stats.UnitDimensionless)
	SiteNum        = metrics.NewInt64("site/num", "Authorized site count", stats.UnitDimensionless)
	SessionNum     = metrics.NewInt64("session/num", "Live session count", stats.UnitDimensionless)
	PendingNum     = metrics.NewInt64("pending/num", "Requests awaiting decision", stats.UnitDimensionless)
	TabRegister    = stats.Int64("tab/register", "Tab register", stats.UnitDimensionless)
	TabUnregister  = stats.Int64("tab/unregister", "Tab unregister", stats.UnitDimensionless)

	// approval queue
	RequestPending  = stats.Int64("pending/created", "Approval request parked", stats.UnitDimensionless)
	RequestApproved = stats.Int64("pending/approved", "Approval request approved", stats.UnitDimensionless)
	RequestRejected = stats.Int64("pending/rejected", "Approval request rejected", stats.UnitDimensionless)
	RequestExpired  = stats.Int64("pending/expired", "Approval request expired", stats.UnitDimensionless)

	// relay
	RelayDropped   = stats.Int64("relay/dropped", "Messages the relay refused to forward", stats.UnitDimensionless)
	RelayForwarded = stats.Int64("relay/forwarded", "Messages the relay forwarded", stats.UnitDimensionless)

	// method call
	ControllerCallDuration = stats.Float64("controller_call", "Controller dispatch spent time", stats.UnitMilliseconds)
	ForwardDuration        = stats.Float64("chain_forward", "Upstream read call spent time", stats.UnitMilliseconds)

	ApiState = metrics.NewInt64("api/state", "api service state. 0: down, 1: up", "")
)

var (
	tabRegisterView = &view.View{
		Measure:     TabRegister,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey},
	}
	tabUnregisterView = &view.View{
		Measure:     TabUnregister,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey},
	}

	requestPendingView = &view.View{
		Measure:     RequestPending,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}
	requestApprovedView = &view.View{
		Measure:     RequestApproved,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}
	requestRejectedView = &view.View{
		Measure:     RequestRejected,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}
	requestExpiredView = &view.View{
		Measure:     RequestExpired,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}

	relayDroppedView = &view.View{
		Measure:     RelayDropped,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey},
	}
	relayForwardedView = &view.View{
		Measure:     RelayForwarded,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}

	controllerCallView = &view.View{
		Measure:     ControllerCallDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{OriginKey, MsgTypeKey},
	}
	forwardView = &view.View{
		Measure:     ForwardDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ChainKey, MethodKey},
	}
)

var views = append([]*view.View{
	tabRegisterView,
	tabUnregisterView,
	requestPendingView,
	requestApprovedView,
	requestRejectedView,
	requestExpiredView,
	relayDroppedView,
	relayForwardedView,
	controllerCallView,
	forwardView,
}, rpcMetrics.DefaultViews...)

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

func init() {
	// register metrics
	_ = view.Register(views...)
}
