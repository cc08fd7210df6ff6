// Package mongo samples MongoDB serverStatus counters and in-progress
// operations.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/sampler"
	"github.com/ITNoesis/pas/internal/series"
	"github.com/ITNoesis/pas/internal/source"
	"github.com/ITNoesis/pas/internal/waitclass"
)

// Category names.
const (
	CategoryOpcounters  = "opcounters"
	CategoryNetwork     = "network"
	CategoryConnections = "sessions"
	CategoryWaits       = "waits"
	CategoryActivity    = "activity"
)

// Options configures a Source.
type Options struct {
	ConnectTimeout time.Duration
	MaxQueryLength int
	Classifier     waitclass.Classifier
}

// Source samples one mongod or mongos.
type Source struct {
	client         *mongo.Client
	admin          *mongo.Database
	classifier     waitclass.Classifier
	maxQueryLength int
	log            *slog.Logger
}

// Open connects to uri and pings the server.
func Open(ctx context.Context, uri string, opts Options) (*Source, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = config.DefaultConnectTimeout
	}
	if opts.Classifier == nil {
		opts.Classifier = waitclass.Default
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetAppName("pas").
		SetConnectTimeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: mongodb: %v", errors.ErrConnectionFailed, err)
	}

	pctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongodb: %v", errors.ErrConnectionFailed, err)
	}

	return &Source{
		client:         client,
		admin:          client.Database("admin"),
		classifier:     opts.Classifier,
		maxQueryLength: opts.MaxQueryLength,
		log:            logging.Component("mongo"),
	}, nil
}

// Name implements sampler.Source.
func (s *Source) Name() string { return "mongodb" }

// Close disconnects the client.
func (s *Source) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Categories implements sampler.Source.
func (s *Source) Categories() []sampler.Category {
	return []sampler.Category{
		{Name: CategoryOpcounters, Kind: sampler.Cumulative, KeyMetric: "command", Fetch: s.fetchOpcounters},
		{Name: CategoryNetwork, Kind: sampler.Cumulative, KeyMetric: "numRequests", Fetch: s.fetchNetwork},
		{Name: CategoryConnections, Kind: sampler.Instantaneous, Fetch: s.fetchConnections},
		{Name: CategoryWaits, Kind: sampler.Instantaneous, Fetch: s.fetchWaits},
		{Name: CategoryActivity, Kind: sampler.Instantaneous, Fetch: s.fetchActivity},
	}
}

// =============================================================================
// serverStatus
// =============================================================================

type serverStatus struct {
	Opcounters struct {
		Insert  int64 `bson:"insert"`
		Query   int64 `bson:"query"`
		Update  int64 `bson:"update"`
		Delete  int64 `bson:"delete"`
		Getmore int64 `bson:"getmore"`
		Command int64 `bson:"command"`
	} `bson:"opcounters"`
	Network struct {
		BytesIn     int64 `bson:"bytesIn"`
		BytesOut    int64 `bson:"bytesOut"`
		NumRequests int64 `bson:"numRequests"`
	} `bson:"network"`
	Connections struct {
		Current   int64 `bson:"current"`
		Available int64 `bson:"available"`
		Active    int64 `bson:"active"`
	} `bson:"connections"`
}

func (st *serverStatus) opcounters() map[string]float64 {
	o := st.Opcounters
	return map[string]float64{
		"insert":  float64(o.Insert),
		"query":   float64(o.Query),
		"update":  float64(o.Update),
		"delete":  float64(o.Delete),
		"getmore": float64(o.Getmore),
		"command": float64(o.Command),
	}
}

func (st *serverStatus) network() map[string]float64 {
	return map[string]float64{
		"bytesIn":     float64(st.Network.BytesIn),
		"bytesOut":    float64(st.Network.BytesOut),
		"numRequests": float64(st.Network.NumRequests),
	}
}

func (st *serverStatus) connections() map[string]float64 {
	return map[string]float64{
		"current":   float64(st.Connections.Current),
		"available": float64(st.Connections.Available),
		"active":    float64(st.Connections.Active),
	}
}

func (s *Source) serverStatus(ctx context.Context) (*serverStatus, error) {
	cmd := bson.D{
		{Key: "serverStatus", Value: 1},
		{Key: "repl", Value: 0},
		{Key: "metrics", Value: 0},
		{Key: "locks", Value: 0},
	}
	var st serverStatus
	if err := s.admin.RunCommand(ctx, cmd).Decode(&st); err != nil {
		return nil, errors.Wrap(err, "serverStatus")
	}
	return &st, nil
}

func (s *Source) fetchOpcounters(ctx context.Context) (sampler.Raw, error) {
	st, err := s.serverStatus(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: st.opcounters()}, nil
}

func (s *Source) fetchNetwork(ctx context.Context) (sampler.Raw, error) {
	st, err := s.serverStatus(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: st.network()}, nil
}

func (s *Source) fetchConnections(ctx context.Context) (sampler.Raw, error) {
	st, err := s.serverStatus(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: st.connections()}, nil
}

// =============================================================================
// $currentOp
// =============================================================================

type currentOp struct {
	OpID             bson.RawValue `bson:"opid"`
	Type             string        `bson:"type"`
	Active           bool          `bson:"active"`
	Op               string        `bson:"op"`
	Ns               string        `bson:"ns"`
	AppName          string        `bson:"appName"`
	Desc             string        `bson:"desc"`
	MicrosecsRunning int64         `bson:"microsecs_running"`
	WaitingForLock   bool          `bson:"waitingForLock"`
	WaitingForFlow   bool          `bson:"waitingForFlowControl"`
	EffectiveUsers   []struct {
		User string `bson:"user"`
	} `bson:"effectiveUsers"`
	Command bson.Raw `bson:"command"`
}

// session maps an in-progress operation to the session record shared with
// other sources. Lock and flow-control waits become wait event types; a
// running operation with no wait is on CPU.
func (op *currentOp) session(maxQueryLength int) series.Session {
	sess := series.Session{
		PID:         opID(op.OpID),
		Application: op.AppName,
		BackendType: op.Type,
		State:       "idle",
		WaitEvent:   op.Op,
		DurationMs:  op.MicrosecsRunning / 1000,
	}
	if op.Active {
		sess.State = "active"
	}
	sess.Database, _, _ = strings.Cut(op.Ns, ".")
	if len(op.EffectiveUsers) > 0 {
		sess.User = op.EffectiveUsers[0].User
	}
	switch {
	case op.WaitingForLock:
		sess.WaitEventType = "Lock"
	case op.WaitingForFlow:
		sess.WaitEventType = "IPC"
		sess.WaitEvent = "FlowControl"
	}
	if len(op.Command) > 0 {
		sess.Query = source.Truncate(op.Command.String(), maxQueryLength)
	}
	return sess
}

// opID returns a numeric operation id. Sharded clusters report ids as
// "shard:opid" strings; the numeric suffix is used.
func opID(v bson.RawValue) int64 {
	if n, ok := v.AsInt64OK(); ok {
		return n
	}
	if str, ok := v.StringValueOK(); ok {
		_, suffix, _ := strings.Cut(str, ":")
		var n int64
		if _, err := fmt.Sscan(suffix, &n); err == nil {
			return n
		}
	}
	return 0
}

var currentOpPipeline = mongo.Pipeline{
	{{Key: "$currentOp", Value: bson.D{
		{Key: "allUsers", Value: true},
		{Key: "idleConnections", Value: false},
		{Key: "idleSessions", Value: false},
	}}},
	{{Key: "$match", Value: bson.D{{Key: "active", Value: true}}}},
}

func (s *Source) sessions(ctx context.Context) ([]series.Session, error) {
	cur, err := s.admin.Aggregate(ctx, currentOpPipeline)
	if err != nil {
		return nil, errors.Wrap(err, "$currentOp")
	}
	var ops []currentOp
	if err := cur.All(ctx, &ops); err != nil {
		return nil, errors.Wrap(err, "$currentOp")
	}

	out := make([]series.Session, 0, len(ops))
	for i := range ops {
		out = append(out, ops[i].session(s.maxQueryLength))
	}
	return out, nil
}

func (s *Source) fetchWaits(ctx context.Context) (sampler.Raw, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: waitclass.Tally(sessions, s.classifier)}, nil
}

func (s *Source) fetchActivity(ctx context.Context) (sampler.Raw, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	sessions = waitclass.Apply(sessions, s.classifier)
	return sampler.Raw{
		Values:   map[string]float64{"sessions": float64(len(sessions))},
		Sessions: sessions,
	}, nil
}
