// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2017 The Lightning Network Developers

// Package hodlvoice wires the hold registry into a plugin of the host node.
package hodlvoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/decred/hodlvoice/build"
	"github.com/decred/hodlvoice/chainstate"
	"github.com/decred/hodlvoice/clnrpc"
	"github.com/decred/hodlvoice/hodl"
	"github.com/decred/hodlvoice/holdstore"
	"github.com/decred/hodlvoice/lnplugin"
	"github.com/decred/hodlvoice/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	// rpcIDPrefix tags the requests made on the host's RPC socket.
	rpcIDPrefix = "hodlvoice"

	optCLTVDelta = "hodlvoice-cltv-delta"

	methodAdd    = "hodlvoice-add"
	methodAccept = "hodlvoice-accept"
	methodReject = "hodlvoice-reject"
	methodStatus = "hodlvoice-status"

	hookHTLCAccepted   = "htlc_accepted"
	hookInvoicePayment = "invoice_payment"

	topicBlockAdded = "block_added"
)

// errNotInitialized is returned by requests that arrive before init.
var errNotInitialized = errors.New("plugin not initialized")

// Main is the true entry point of the plugin. It serves the host over stdin
// and stdout until the host closes stdin or shutdownChan is closed.
func Main(cfg *Config, shutdownChan <-chan struct{}) error {
	defer logWriter.Close()

	hdvcLog.Infof("Version: %s commit=%s, keymode=%s, store=%s",
		build.Version(), build.Commit, cfg.keyMode, cfg.DecisionStore)

	metrics := monitoring.New()
	if cfg.Prometheus.Listen != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return err
		}
		exporter, err := monitoring.StartExporter(
			cfg.Prometheus.Listen, reg,
		)
		if err != nil {
			return fmt.Errorf("unable to start prometheus "+
				"exporter: %v", err)
		}
		defer exporter.Stop()
	}

	s := newServer(cfg, metrics, func(path string) clnrpc.Caller {
		return lnplugin.NewClient(path, rpcIDPrefix)
	})
	defer s.stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-shutdownChan:
			hdvcLog.Infof("Shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.plugin.Run(ctx, os.Stdin, os.Stdout)
	hdvcLog.Infof("Plugin stopped")
	return err
}

// server holds the state shared by the plugin's request handlers.
type server struct {
	cfg     *Config
	chain   *chainstate.Tracker
	metrics *monitoring.Metrics
	plugin  *lnplugin.Plugin

	newCaller func(path string) clnrpc.Caller

	// The fields below are set by init, which the plugin serves before
	// dispatching any other request.
	client   *clnrpc.Client
	store    holdstore.Store
	registry *hodl.Registry
}

func newServer(cfg *Config, metrics *monitoring.Metrics,
	newCaller func(path string) clnrpc.Caller) *server {

	s := &server{
		cfg:       cfg,
		chain:     chainstate.NewTracker(cfg.CLTVDelta),
		metrics:   metrics,
		newCaller: newCaller,
	}

	// A plugin holding payments must not be stopped while the host runs.
	p := lnplugin.New(false)
	p.AddOption(lnplugin.Option{
		Name:        optCLTVDelta,
		Type:        lnplugin.OptionInt,
		Default:     cfg.CLTVDelta,
		Description: "cltv delta of hold invoices, on top of the hold safety margin",
		Dynamic:     true,
	})
	p.AddMethod(
		methodAdd,
		"amount_msat description label [expiry] [fallbacks] "+
			"[preimage] [exposeprivatechannels] [deschashonly]",
		"Create an invoice whose payment is held until accepted or "+
			"rejected",
		s.add,
	)
	p.AddMethod(methodAccept, "key",
		"Settle the held payment of a hold invoice", s.accept)
	p.AddMethod(methodReject, "key",
		"Fail the held payment of a hold invoice", s.reject)
	p.AddMethod(methodStatus, "key",
		"Show the recorded decision of a hold invoice", s.status)

	// The host needs the hook set in the manifest, before any option is
	// delivered, so the key mode comes from the plugin's own config.
	switch cfg.keyMode {
	case hodl.KeyLabel:
		p.AddHook(hookInvoicePayment, s.invoicePayment)
	default:
		p.AddHook(hookHTLCAccepted, s.htlcAccepted)
	}

	p.Subscribe(topicBlockAdded, s.blockAdded)
	p.OnInit(s.init)
	p.OnSetConfig(s.setConfig)

	s.plugin = p
	return s
}

func (s *server) init(ctx context.Context, params *lnplugin.InitParams) error {
	if raw, ok := params.Options[optCLTVDelta]; ok {
		delta, err := parseUint32Option(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", optCLTVDelta, err)
		}
		s.chain.SetCLTVDelta(delta)
	}

	rpcPath := params.Configuration.RPCPath()
	s.client = clnrpc.New(s.newCaller(rpcPath))

	info, err := s.client.GetInfo(ctx)
	if err != nil {
		return fmt.Errorf("unable to query node info: %v", err)
	}
	s.chain.SetHeight(info.BlockHeight)
	s.metrics.SetBlockHeight(info.BlockHeight)

	store, err := s.openStore()
	if err != nil {
		return fmt.Errorf("unable to open %s decision store: %v",
			s.cfg.DecisionStore, err)
	}
	s.store = store

	var limiter *rate.Limiter
	if s.cfg.Store.MaxLookups > 0 {
		limiter = rate.NewLimiter(
			rate.Limit(s.cfg.Store.MaxLookups),
			s.cfg.Store.LookupBurst,
		)
	}

	s.registry = hodl.NewRegistry(&hodl.Config{
		Store:               store,
		Invoices:            s.client,
		Chain:               s.chain,
		KeyMode:             s.cfg.keyMode,
		HoldSafetyBlocks:    s.cfg.HoldSafetyBlocks,
		HTLCPollInterval:    s.cfg.HTLCPollInterval,
		PaymentPollInterval: s.cfg.PaymentPollInterval,
		StrictStoreErrors:   s.cfg.StrictStoreErrors,
		StrictResolve:       s.cfg.StrictResolve,
		LookupLimiter:       limiter,
		Metrics:             s.metrics,
	})

	snapshot := s.chain.Snapshot()
	hdvcLog.Infof("Initialized on %s node %s at height %d (cltv delta "+
		"%d, rpc %s)", info.Network, info.ID, snapshot.Height,
		snapshot.CLTVDelta, rpcPath)
	s.plugin.Log(lnplugin.LogInfo, fmt.Sprintf("hodlvoice %s holding "+
		"payments keyed by %s", build.Version(), s.cfg.keyMode))

	return nil
}

func (s *server) openStore() (holdstore.Store, error) {
	switch s.cfg.DecisionStore {
	case storeBolt:
		return holdstore.OpenBoltStore(s.cfg.DataDir)

	case storeSQLite:
		return holdstore.OpenSQLiteStore(s.cfg.DataDir)

	default:
		return holdstore.NewDatastoreStore(s.client), nil
	}
}

// stop releases pending evaluations and closes the decision store.
func (s *server) stop() {
	if s.registry != nil {
		s.registry.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			hdvcLog.Errorf("Unable to close decision store: %v", err)
		}
	}
}

func (s *server) setConfig(_ context.Context, name string,
	val json.RawMessage) error {

	if name != optCLTVDelta {
		return lnplugin.NewError(lnplugin.CodeInvalidParams,
			"option %s is not dynamic", name)
	}

	delta, err := parseUint32Option(val)
	if err != nil {
		return lnplugin.NewError(lnplugin.CodeInvalidParams,
			"invalid %s: %v", name, err)
	}
	s.chain.SetCLTVDelta(delta)

	hdvcLog.Infof("Set cltv delta to %d", delta)
	return nil
}

func (s *server) blockAdded(_ context.Context, params json.RawMessage) error {
	if err := s.chain.BlockAdded(params); err != nil {
		return err
	}
	s.metrics.SetBlockHeight(s.chain.Height())
	return nil
}

func (s *server) htlcAccepted(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	if s.registry == nil {
		return nil, errNotInitialized
	}
	res, err := s.registry.HandleHTLC(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.HookResult(), nil
}

func (s *server) invoicePayment(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	if s.registry == nil {
		return nil, errNotInitialized
	}
	res, err := s.registry.HandleInvoicePayment(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.HookResult(), nil
}

func (s *server) add(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	p, err := hodl.DecodeAddParams(params)
	if err != nil {
		return s.commandResult(methodAdd, nil, err)
	}
	if s.registry == nil {
		return nil, errNotInitialized
	}
	inv, err := s.registry.AddInvoice(ctx, p)
	return s.commandResult(methodAdd, inv, err)
}

func (s *server) accept(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	return s.keyCommand(methodAccept, params,
		func(key string) (interface{}, error) {
			return s.registry.Accept(ctx, key)
		},
	)
}

func (s *server) reject(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	return s.keyCommand(methodReject, params,
		func(key string) (interface{}, error) {
			return s.registry.Reject(ctx, key)
		},
	)
}

func (s *server) status(ctx context.Context,
	params json.RawMessage) (interface{}, error) {

	return s.keyCommand(methodStatus, params,
		func(key string) (interface{}, error) {
			return s.registry.Status(ctx, key)
		},
	)
}

func (s *server) keyCommand(name string, params json.RawMessage,
	f func(key string) (interface{}, error)) (interface{}, error) {

	key, err := hodl.DecodeKeyParam(params)
	if err != nil {
		return s.commandResult(name, nil, err)
	}
	if s.registry == nil {
		return nil, errNotInitialized
	}
	result, err := f(key)
	return s.commandResult(name, result, err)
}

// commandResult records the outcome of an operator command and converts its
// error into the response sent to the host.
func (s *server) commandResult(name string, result interface{},
	err error) (interface{}, error) {

	s.metrics.Command(name, err)
	if err == nil {
		return result, nil
	}

	hdvcLog.Debugf("%s failed: %v", name, err)
	if errors.Is(err, hodl.ErrInvalidParams) {
		return nil, lnplugin.NewError(
			lnplugin.CodeInvalidParams, "%v", err,
		)
	}
	return nil, err
}

// parseUint32Option decodes an option value, which the host sends either as
// a number or as a string depending on its version.
func parseUint32Option(raw json.RawMessage) (uint32, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
