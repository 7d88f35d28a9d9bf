// Package lnplugin implements the plugin side of the host's plugin protocol:
// JSON-RPC 2.0 messages exchanged over the plugin's stdin and stdout, plus a
// client for the host's own RPC socket.
package lnplugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/davecgh/go-spew/spew"
	goerrors "github.com/go-errors/errors"
)

// Log levels accepted by the host in log notifications.
const (
	LogDebug   = "debug"
	LogInfo    = "info"
	LogUnusual = "unusual"
	LogBroken  = "broken"
)

// Handler serves an RPC method or a hook. The returned value is marshalled as
// the result of the response.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler consumes a subscribed notification.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// InitFunc is called once the host delivered the init request. A returned
// error disables the plugin.
type InitFunc func(ctx context.Context, params *InitParams) error

// SetConfigFunc is called when the host changes a dynamic option.
type SetConfigFunc func(ctx context.Context, name string, val json.RawMessage) error

type method struct {
	info    MethodInfo
	handler Handler
}

// Plugin dispatches host requests to registered handlers. Hooks and methods
// are served on their own goroutine, so a hook which holds a payment does not
// stall unrelated requests. Notifications and setconfig are applied in the
// order the host sent them.
type Plugin struct {
	dynamic bool

	options []Option
	methods []*method
	hooks   map[string]Handler
	hookIDs []string
	subs    map[string]NotificationHandler
	subIDs  []string

	onInit      InitFunc
	onSetConfig SetConfigFunc

	outMtx sync.Mutex
	out    io.Writer

	wg sync.WaitGroup
}

// New creates a plugin. Dynamic plugins may be started and stopped while the
// host is running.
func New(dynamic bool) *Plugin {
	return &Plugin{
		dynamic: dynamic,
		hooks:   make(map[string]Handler),
		subs:    make(map[string]NotificationHandler),
	}
}

// AddOption adds an option to the manifest.
func (p *Plugin) AddOption(opt Option) {
	p.options = append(p.options, opt)
}

// AddMethod adds an RPC method to the host's command set.
func (p *Plugin) AddMethod(name, usage, description string, h Handler) {
	p.methods = append(p.methods, &method{
		info: MethodInfo{
			Name:        name,
			Usage:       usage,
			Description: description,
		},
		handler: h,
	})
}

// AddHook registers h for the named hook.
func (p *Plugin) AddHook(name string, h Handler) {
	if _, ok := p.hooks[name]; !ok {
		p.hookIDs = append(p.hookIDs, name)
	}
	p.hooks[name] = h
}

// Subscribe registers h for the named notification topic.
func (p *Plugin) Subscribe(topic string, h NotificationHandler) {
	if _, ok := p.subs[topic]; !ok {
		p.subIDs = append(p.subIDs, topic)
	}
	p.subs[topic] = h
}

// OnInit sets the function called on init.
func (p *Plugin) OnInit(f InitFunc) {
	p.onInit = f
}

// OnSetConfig sets the function called when a dynamic option changes.
func (p *Plugin) OnSetConfig(f SetConfigFunc) {
	p.onSetConfig = f
}

// Manifest returns the reply to getmanifest.
func (p *Plugin) Manifest() *Manifest {
	m := &Manifest{
		Options:       p.options,
		RPCMethods:    make([]MethodInfo, 0, len(p.methods)),
		Subscriptions: append([]string{}, p.subIDs...),
		Hooks:         make([]HookInfo, 0, len(p.hookIDs)),
		Dynamic:       p.dynamic,
	}
	if m.Options == nil {
		m.Options = []Option{}
	}
	for _, meth := range p.methods {
		m.RPCMethods = append(m.RPCMethods, meth.info)
	}
	for _, name := range p.hookIDs {
		m.Hooks = append(m.Hooks, HookInfo{Name: name})
	}
	return m
}

// Run reads requests from in and writes responses to out until in is closed,
// which is how the host signals shutdown, or ctx is canceled. The context
// passed to handlers is canceled before Run returns, and Run waits for every
// handler to finish.
func (p *Plugin) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.outMtx.Lock()
	p.out = out
	p.outMtx.Unlock()

	reqs := make(chan *Request)
	readErr := make(chan error, 1)
	go func() {
		dec := json.NewDecoder(in)
		for {
			req := new(Request)
			if err := dec.Decode(req); err != nil {
				readErr <- err
				return
			}
			select {
			case reqs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	var err error
loop:
	for {
		select {
		case req := <-reqs:
			p.handle(ctx, req)

		case rerr := <-readErr:
			if !errors.Is(rerr, io.EOF) {
				err = fmt.Errorf("unable to decode request: %w",
					rerr)
			}
			break loop

		case <-ctx.Done():
			break loop
		}
	}

	log.Debugf("Stopping plugin, waiting for pending handlers")
	cancel()
	p.wg.Wait()

	return err
}

// handle serves the handshake, notifications and setconfig in arrival order
// on the read loop. Hooks and methods may block, so each gets its own
// goroutine.
func (p *Plugin) handle(ctx context.Context, req *Request) {
	log.Tracef("Received request: %v", newLogClosure(func() string {
		return fmt.Sprintf("%s id=%s params=%s", req.Method, req.ID,
			req.Params)
	}))

	switch req.Method {
	case "getmanifest":
		manifest := p.Manifest()
		log.Tracef("Sending manifest: %v", newLogClosure(func() string {
			return spew.Sdump(manifest)
		}))
		p.respond(req.ID, manifest, nil)

	case "init":
		p.handleInit(ctx, req)

	default:
		if req.IsNotification() || req.Method == "setconfig" {
			p.dispatch(ctx, req)
			return
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.dispatch(ctx, req)
		}()
	}
}

func (p *Plugin) handleInit(ctx context.Context, req *Request) {
	var params InitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		p.respond(req.ID, nil, NewError(CodeInvalidParams,
			"invalid init params: %v", err))
		return
	}

	if p.onInit != nil {
		if err := p.onInit(ctx, &params); err != nil {
			log.Errorf("Unable to initialize plugin: %v", err)
			p.respond(req.ID, map[string]string{
				"disable": err.Error(),
			}, nil)
			return
		}
	}

	p.respond(req.ID, struct{}{}, nil)
}

func (p *Plugin) dispatch(ctx context.Context, req *Request) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		err := goerrors.Wrap(r, 2)
		log.Errorf("Panic while handling %s: %v\n%s", req.Method, err,
			err.ErrorStack())
		if !req.IsNotification() {
			p.respond(req.ID, nil, NewError(CodeInternalError,
				"internal error handling %s: %v", req.Method, r))
		}
	}()

	if req.IsNotification() {
		p.dispatchNotification(ctx, req)
		return
	}

	if req.Method == "setconfig" {
		p.handleSetConfig(ctx, req)
		return
	}

	h := p.handler(req.Method)
	if h == nil {
		p.respond(req.ID, nil, NewError(CodeMethodNotFound,
			"unknown method %s", req.Method))
		return
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		log.Debugf("Handler for %s failed: %v", req.Method, err)
		p.respond(req.ID, nil, toRPCError(err))
		return
	}
	p.respond(req.ID, result, nil)
}

func (p *Plugin) dispatchNotification(ctx context.Context, req *Request) {
	h, ok := p.subs[req.Method]
	if !ok {
		log.Debugf("Ignoring unsubscribed notification %s", req.Method)
		return
	}

	// Notifications carry no id, so a failure can only be reported to
	// the host log.
	if err := h(ctx, req.Params); err != nil {
		log.Errorf("Unable to handle %s notification: %v", req.Method,
			err)
		p.Log(LogBroken, fmt.Sprintf("unable to handle %s: %v",
			req.Method, err))
	}
}

func (p *Plugin) handleSetConfig(ctx context.Context, req *Request) {
	var params setConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		p.respond(req.ID, nil, NewError(CodeInvalidParams,
			"invalid setconfig params: %v", err))
		return
	}
	if p.onSetConfig == nil {
		p.respond(req.ID, nil, NewError(CodeInvalidParams,
			"option %s is not dynamic", params.Config))
		return
	}
	if err := p.onSetConfig(ctx, params.Config, params.Val); err != nil {
		p.respond(req.ID, nil, toRPCError(err))
		return
	}
	p.respond(req.ID, struct{}{}, nil)
}

func (p *Plugin) handler(name string) Handler {
	for _, m := range p.methods {
		if m.info.Name == name {
			return m.handler
		}
	}
	return p.hooks[name]
}

// Log sends a log notification to the host.
func (p *Plugin) Log(level, message string) {
	p.write(&notification{
		JSONRPC: jsonRPCVersion,
		Method:  "log",
		Params: map[string]string{
			"level":   level,
			"message": message,
		},
	})
}

func (p *Plugin) respond(id json.RawMessage, result interface{},
	rpcErr *RPCError) {

	resp := &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   rpcErr,
	}
	if rpcErr == nil {
		b, err := json.Marshal(result)
		if err != nil {
			resp.Error = NewError(CodeInternalError,
				"unable to encode result: %v", err)
		} else {
			resp.Result = b
		}
	}
	p.write(resp)
}

func (p *Plugin) write(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Unable to encode message: %v", err)
		return
	}
	b = append(b, '\n', '\n')

	p.outMtx.Lock()
	defer p.outMtx.Unlock()

	if p.out == nil {
		return
	}
	if _, err := p.out.Write(b); err != nil {
		log.Errorf("Unable to write to host: %v", err)
	}
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{
		Code:    CodeInternalError,
		Message: err.Error(),
	}
}
