// Package client is the public API surface: a Session drives the broker
// handshake, serializes data-plane operations, and exposes query
// execution, paged fetch, and transaction control over a transport.Transport.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brokersql/cas-go/protocol"
	"github.com/brokersql/cas-go/transport"
	"github.com/brokersql/cas-go/transport/tcp"
)

// clientVersion is sent on every rendezvous exchange.
const clientVersion = 1

// EndOfStream is returned by Fetch when a handle's current tuple count has
// already reached its total; no packet is sent for it.
var EndOfStream = &QueryHandle{}

// QueryResult is the decoded outcome of a successful ExecuteQuery: the
// column layout, the first page of rows, and the handle that owns any
// further pages (nil when the result came from the response cache).
type QueryResult struct {
	Handle  *QueryHandle
	Columns []protocol.ColumnDescriptor
	Rows    []protocol.Row
	Total   int32
}

// Session owns one broker connection: the socket, the handshake-derived
// identity, the auto-commit flag, and the open query handles. Connect and
// every data-plane operation that goes on the wire are serialized through
// its action queue; Close does not enter the queue. A Session value must
// not be copied after use.
type Session struct {
	opts   Options
	dialer func(ctx context.Context, address string, timeout time.Duration) (transport.Transport, error)

	transport transport.Transport
	state     *StateManager
	queue     *actionQueue
	events    *EventEmitter
	cache     *ResponseCache
	handles   *handleTable

	logger    Logger
	rowMapper RowMapper
	formatter SQLFormatter

	clientID string

	cas          protocol.CASInfo
	assignedPort int
	sessionID    int32
	brokerInfo   protocol.BrokerInfo
	autoCommit   bool
}

// NewSession constructs a Session in the Closed state. Connect must be
// called before any data-plane operation.
func NewSession(opts ...Option) *Session {
	o := applyOptions(opts...)
	logger := o.Logger
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Session{
		opts:      o,
		dialer:    dialTCP,
		state:     NewStateManager(),
		queue:     newActionQueue(),
		events:    NewEventEmitter(),
		cache:     NewResponseCache(o.CacheTimeout),
		handles:   newHandleTable(),
		logger:    logger,
		rowMapper: DefaultRowMapper,
		formatter: DefaultSQLFormatter,
		clientID:   uuid.NewString(),
		cas:        protocol.InitialCASInfo(),
		autoCommit: o.AutoCommit,
	}
}

func dialTCP(ctx context.Context, address string, timeout time.Duration) (transport.Transport, error) {
	return tcp.Dial(ctx, tcp.Options{Address: address, Timeout: timeout})
}

// On registers handler for the named event.
func (s *Session) On(name EventName, handler EventHandler) {
	s.events.On(name, handler)
}

// State reports the session's current lifecycle state.
func (s *Session) State() ConnectionState {
	return s.state.GetState()
}

// SetRowMapper overrides the default pass-through RowMapper.
func (s *Session) SetRowMapper(m RowMapper) {
	s.rowMapper = m
}

// SetSQLFormatter overrides the default textual-interpolation SQLFormatter.
func (s *Session) SetSQLFormatter(f SQLFormatter) {
	s.formatter = f
}

// SessionID returns the server-assigned session identifier. Zero before a
// successful Connect.
func (s *Session) SessionID() int32 {
	return s.sessionID
}

// BrokerInfo returns the immutable broker capability record captured at
// handshake end.
func (s *Session) BrokerInfo() protocol.BrokerInfo {
	return s.brokerInfo
}

// AutoCommit reports the session's locally tracked auto-commit mode.
func (s *Session) AutoCommit() bool {
	return s.autoCommit
}

// TransportMetrics exposes the underlying transport's byte/latency
// counters. Zero value before Connect.
func (s *Session) TransportMetrics() transport.TransportMetrics {
	if s.transport == nil {
		return transport.TransportMetrics{}
	}
	return s.transport.GetMetrics()
}

// ConnectWithURL is not implemented; the reference source leaves it a
// stub and spec.md §9 directs implementations to treat it the same way.
func (s *Session) ConnectWithURL(ctx context.Context, url string) error {
	return NewNotImplementedError("connect with url is not implemented")
}

// GetSchema is not implemented; schema introspection is treated as a
// single opaque request kind that this client does not build.
func (s *Session) GetSchema(ctx context.Context, name string) (interface{}, error) {
	return nil, NewNotImplementedError("schema introspection is not implemented")
}

// Connect drives the broker handshake: rendezvous against Host:Port,
// followed by login against the assigned port. It rejects a call made
// while a connect or query is already in flight with BusyKind, per
// spec.md §4.3's overlapping-connect policy.
func (s *Session) Connect(ctx context.Context) error {
	if !s.queue.TryEnter() {
		return s.fail(NewBusyError("connect already in flight"))
	}
	defer s.queue.Leave()

	if err := s.state.TransitionTo(RendezvousPending, nil, nil); err != nil {
		return s.fail(NewStateError(err.Error()))
	}

	var lastErr error
	retries := s.opts.MaxConnectionRetryCount
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond
			s.logger.Warn("retrying connect", Int("attempt", attempt), Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return s.fail(NewTimeoutError("connect canceled during backoff"))
			}
		}
		if lastErr = s.connectOnce(ctx); lastErr == nil {
			s.events.Emit(EventConnect, nil)
			return nil
		}
	}
	s.state.TransitionTo(Closed, lastErr, nil)
	return s.fail(lastErr)
}

func (s *Session) connectOnce(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	rendezvousTransport, err := s.dialer(ctx, address, s.opts.LoginTimeout)
	if err != nil {
		return NewTransportError("rendezvous dial failed", err)
	}

	req := protocol.ClientInfoRequest{ClientVersion: clientVersion, ClientID: s.clientID}
	frame := protocol.EncodeClientInfoRequest(s.cas, req)
	if err := rendezvousTransport.Send(ctx, frame); err != nil {
		rendezvousTransport.Close()
		return NewTransportError("rendezvous send failed", err)
	}
	raw, err := rendezvousTransport.Receive(ctx)
	rendezvousTransport.Close()
	if err != nil {
		return NewTransportError("rendezvous receive failed", err)
	}
	_, body, err := splitFrame(raw)
	if err != nil {
		return NewProtocolError("malformed rendezvous frame", err)
	}
	resp, err := protocol.DecodeClientInfoResponse(body)
	if err != nil {
		return NewProtocolError("decode rendezvous response", err)
	}
	if resp.Tail.IsError() {
		return NewServerError(resp.Tail.ErrorCode, resp.Tail.ErrorMessage)
	}
	s.assignedPort = int(resp.Port)

	if err := s.state.TransitionTo(LoginPending, nil, nil); err != nil {
		return NewStateError(err.Error())
	}

	loginAddress := fmt.Sprintf("%s:%d", s.opts.Host, s.assignedPort)
	tr, err := s.dialer(ctx, loginAddress, s.opts.LoginTimeout)
	if err != nil {
		return NewTransportError("login dial failed", err)
	}

	loginReq := protocol.OpenDatabaseRequest{Database: s.opts.Database, User: s.opts.User, Password: s.opts.Password}
	loginFrame := protocol.EncodeOpenDatabaseRequest(s.cas, loginReq)
	if err := tr.Send(ctx, loginFrame); err != nil {
		tr.Close()
		return NewTransportError("login send failed", err)
	}
	raw, err = tr.Receive(ctx)
	if err != nil {
		tr.Close()
		return NewTransportError("login receive failed", err)
	}
	cas, loginBody, err := splitFrame(raw)
	if err != nil {
		tr.Close()
		return NewProtocolError("malformed login frame", err)
	}
	loginResp, err := protocol.DecodeOpenDatabaseResponse(cas, loginBody)
	if err != nil {
		tr.Close()
		return NewProtocolError("decode login response", err)
	}
	if loginResp.Tail.IsError() {
		tr.Close()
		return NewServerError(loginResp.Tail.ErrorCode, loginResp.Tail.ErrorMessage)
	}

	s.transport = tr
	s.cas = loginResp.CASInfo
	s.sessionID = loginResp.SessionID
	s.brokerInfo = loginResp.BrokerInfo
	s.autoCommit = protocol.AutoCommitFromToken(loginResp.CASInfo)

	if err := s.state.TransitionTo(Idle, nil, nil); err != nil {
		return NewStateError(err.Error())
	}
	return nil
}

// exchange sends frame and returns the CAS info and body of the response,
// updating the session's tracked CAS info on a well-formed reply.
func (s *Session) exchange(ctx context.Context, frame []byte) (protocol.CASInfo, []byte, error) {
	if s.transport == nil {
		return protocol.CASInfo{}, nil, NewStateError("session is not connected")
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.state.TransitionTo(Closed, err, nil)
		return protocol.CASInfo{}, nil, NewTransportError("send failed", err)
	}
	raw, err := s.transport.Receive(ctx)
	if err != nil {
		s.state.TransitionTo(Closed, err, nil)
		return protocol.CASInfo{}, nil, NewTransportError("receive failed", err)
	}
	cas, body, err := splitFrame(raw)
	if err != nil {
		return protocol.CASInfo{}, nil, NewProtocolError("malformed frame", err)
	}
	s.cas = cas
	return cas, body, nil
}

// enterDataPlane transitions Idle -> QueryPending for the duration of a
// data-plane op, rejecting the call if the session is not Idle.
func (s *Session) enterDataPlane(ctx context.Context, exclusive bool) error {
	if exclusive {
		if !s.queue.TryEnter() {
			return NewBusyError("query already in flight")
		}
	} else if err := s.queue.Enter(ctx); err != nil {
		return NewTimeoutError("timed out waiting for the action queue")
	}
	if err := s.state.TransitionTo(QueryPending, nil, nil); err != nil {
		s.queue.Leave()
		return NewStateError(err.Error())
	}
	return nil
}

func (s *Session) leaveDataPlane() {
	s.state.TransitionTo(Idle, nil, nil)
	s.queue.Leave()
}

// ExecuteQuery runs sql (formatted with args via the session's
// SQLFormatter) and returns its first page of results. A response-cache
// hit short-circuits the round trip and returns a nil Handle.
func (s *Session) ExecuteQuery(ctx context.Context, sql string, args ...interface{}) (*QueryResult, error) {
	formatted, err := s.formatter.Format(sql, args...)
	if err != nil {
		return nil, s.fail(err)
	}
	if formatted == "" {
		return nil, s.fail(NewValidationError("sql text must not be empty"))
	}

	if cached, ok := s.cache.Get(formatted); ok {
		s.events.Emit(EventQueryData, cached)
		return &QueryResult{Handle: nil, Columns: cached.Columns, Rows: cached.Rows, Total: cached.Total}, nil
	}

	if err := s.enterDataPlane(ctx, true); err != nil {
		return nil, s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeExecuteQueryRequest(s.cas, protocol.ExecuteQueryRequest{SQL: formatted, AutoCommit: s.autoCommit})
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return nil, s.fail(err)
	}
	resp, err := protocol.DecodeExecuteQueryResponse(body)
	if err != nil {
		return nil, s.fail(NewProtocolError("decode execute response", err))
	}
	if resp.Tail.IsError() {
		return nil, s.fail(NewServerError(resp.Tail.ErrorCode, resp.Tail.ErrorMessage))
	}

	handle := &QueryHandle{ID: resp.Handle, Total: resp.TotalCount, Columns: resp.Columns}
	handle.advance(resp.Rows)
	s.handles.put(handle)

	s.cache.Put(formatted, CachedResult{Columns: resp.Columns, Rows: resp.Rows, Total: resp.TotalCount})
	s.events.Emit(EventQueryData, resp.Rows)
	return &QueryResult{Handle: handle, Columns: resp.Columns, Rows: resp.Rows, Total: resp.TotalCount}, nil
}

// Fetch returns the next page for handleID. It returns EndOfStream (a
// non-nil sentinel, not an error) once current has reached total, per
// spec.md §4.4 — no packet is sent in that case.
func (s *Session) Fetch(ctx context.Context, handleID int32) ([]protocol.Row, *QueryHandle, error) {
	handle, ok := s.handles.get(handleID)
	if !ok {
		return nil, nil, s.fail(NewStateError("no active query for handle"))
	}
	if handle.Done() {
		s.events.Emit(EventFetchDone, handleID)
		return nil, EndOfStream, nil
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return nil, nil, s.fail(err)
	}
	defer s.leaveDataPlane()

	req := protocol.FetchRequest{Handle: handleID, Start: handle.Current + 1, FetchSize: protocol.DefaultFetchSize}
	frame := protocol.EncodeFetchRequest(s.cas, req)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return nil, nil, s.fail(err)
	}
	resp, err := protocol.DecodeFetchResponse(body, handle.Columns)
	if err != nil {
		return nil, nil, s.fail(NewProtocolError("decode fetch response", err))
	}
	if resp.Tail.IsError() {
		return nil, nil, s.fail(NewServerError(resp.Tail.ErrorCode, resp.Tail.ErrorMessage))
	}

	handle.advance(resp.Rows)
	s.events.Emit(EventFetch, resp.Rows)
	if handle.Done() {
		s.events.Emit(EventFetchDone, handleID)
	}
	return resp.Rows, handle, nil
}

// CloseQuery releases handleID. An unknown handle completes quietly, per
// spec.md §9. The handle is removed from the table only after the server
// acknowledges the close, not before.
func (s *Session) CloseQuery(ctx context.Context, handleID int32) error {
	if _, ok := s.handles.get(handleID); !ok {
		return nil
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return s.fail(err)
	}
	defer s.leaveDataPlane()

	return s.closeQueryOnWire(ctx, handleID)
}

// closeQueryOnWire sends the close-query packet and removes the handle on
// acknowledged success. It does not touch the action queue or the state
// machine, so Close can call it once already in the Closing state (which
// legally transitions only to Closed).
func (s *Session) closeQueryOnWire(ctx context.Context, handleID int32) error {
	frame := protocol.EncodeCloseQueryRequest(s.cas, handleID)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return s.fail(err)
	}
	ack, err := protocol.DecodeAckResponse(body)
	if err != nil {
		return s.fail(NewProtocolError("decode close query response", err))
	}
	if ack.Tail.IsError() {
		return s.fail(NewServerError(ack.Tail.ErrorCode, ack.Tail.ErrorMessage))
	}

	s.handles.remove(handleID)
	s.events.Emit(EventCloseQuery, handleID)
	return nil
}

// SetAutoCommitMode changes the session's auto-commit mode. Calling it
// with the current mode is a no-op that sends nothing on the wire, per
// spec.md §4.3's idempotence requirement.
func (s *Session) SetAutoCommitMode(ctx context.Context, on bool) error {
	if s.autoCommit == on {
		return nil
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeSetAutoCommitRequest(s.cas, on)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return s.fail(err)
	}
	ack, err := protocol.DecodeAckResponse(body)
	if err != nil {
		return s.fail(NewProtocolError("decode set autocommit response", err))
	}
	if ack.Tail.IsError() {
		return s.fail(NewServerError(ack.Tail.ErrorCode, ack.Tail.ErrorMessage))
	}

	s.autoCommit = on
	s.events.Emit(EventSetAutoCommitMode, on)
	return nil
}

// BeginTransaction is defined as SetAutoCommitMode(false).
func (s *Session) BeginTransaction(ctx context.Context) error {
	if err := s.SetAutoCommitMode(ctx, false); err != nil {
		return err
	}
	s.events.Emit(EventBeginTransaction, nil)
	return nil
}

// Commit commits the current transaction. With auto-commit on this is a
// no-op that emits nothing on the wire, per spec.md §4.3.
func (s *Session) Commit(ctx context.Context) error {
	if s.autoCommit {
		s.events.Emit(EventCommit, nil)
		return nil
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeCommitRequest(s.cas)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return s.fail(err)
	}
	ack, err := protocol.DecodeAckResponse(body)
	if err != nil {
		return s.fail(NewProtocolError("decode commit response", err))
	}
	if ack.Tail.IsError() {
		return s.fail(NewServerError(ack.Tail.ErrorCode, ack.Tail.ErrorMessage))
	}
	s.events.Emit(EventCommit, nil)
	return nil
}

// Rollback rolls back the current transaction. With auto-commit on this
// is a no-op that emits nothing on the wire, per spec.md §4.3.
func (s *Session) Rollback(ctx context.Context) error {
	if s.autoCommit {
		s.events.Emit(EventRollback, nil)
		return nil
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeRollbackRequest(s.cas)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return s.fail(err)
	}
	ack, err := protocol.DecodeAckResponse(body)
	if err != nil {
		return s.fail(NewProtocolError("decode rollback response", err))
	}
	if ack.Tail.IsError() {
		return s.fail(NewServerError(ack.Tail.ErrorCode, ack.Tail.ErrorMessage))
	}
	s.events.Emit(EventRollback, nil)
	return nil
}

// ExecuteBatch runs stmts for their side effects, returning one
// affected-row count per statement.
func (s *Session) ExecuteBatch(ctx context.Context, stmts []string) ([]int64, error) {
	if len(stmts) == 0 {
		return nil, s.fail(NewValidationError("batch must contain at least one statement"))
	}

	if err := s.enterDataPlane(ctx, false); err != nil {
		return nil, s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeExecuteBatchRequest(s.cas, protocol.ExecuteBatchRequest{Statements: stmts, AutoCommit: s.autoCommit})
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return nil, s.fail(err)
	}
	resp, err := protocol.DecodeExecuteBatchResponse(body)
	if err != nil {
		return nil, s.fail(NewProtocolError("decode batch response", err))
	}
	if resp.Tail.IsError() {
		return nil, s.fail(NewServerError(resp.Tail.ErrorCode, resp.Tail.ErrorMessage))
	}

	counts := make([]int64, len(resp.AffectedCounts))
	for i, c := range resp.AffectedCounts {
		counts[i] = int64(c)
	}
	s.events.Emit(EventBatchExecuteDone, counts)
	return counts, nil
}

// EngineVersion returns the broker's reported engine version string.
func (s *Session) EngineVersion(ctx context.Context) (string, error) {
	if err := s.enterDataPlane(ctx, false); err != nil {
		return "", s.fail(err)
	}
	defer s.leaveDataPlane()

	frame := protocol.EncodeGetEngineVersionRequest(s.cas)
	_, body, err := s.exchange(ctx, frame)
	if err != nil {
		return "", s.fail(err)
	}
	resp, err := protocol.DecodeEngineVersionResponse(body)
	if err != nil {
		return "", s.fail(NewProtocolError("decode engine version response", err))
	}
	if resp.Tail.IsError() {
		return "", s.fail(NewServerError(resp.Tail.ErrorCode, resp.Tail.ErrorMessage))
	}
	s.events.Emit(EventEngineVersion, resp.Version)
	return resp.Version, nil
}

// Ping performs a get-engine-version round trip and discards the result;
// a non-nil error means the connection is unusable.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.EngineVersion(ctx)
	return err
}

// Close tears down every open query handle (best-effort), sends
// close-database, and releases the socket.
func (s *Session) Close(ctx context.Context) error {
	if err := s.state.TransitionTo(Closing, nil, nil); err != nil {
		return s.fail(NewStateError(err.Error()))
	}

	for _, id := range s.handles.ids() {
		if err := s.closeQueryOnWire(ctx, id); err != nil {
			s.logger.Warn("error closing query handle during session close", Int32("handle", id), Err("error", err))
		}
	}

	var closeErr error
	if s.transport != nil {
		frame := protocol.EncodeCloseDatabaseRequest(s.cas)
		if err := s.transport.Send(ctx, frame); err == nil {
			if raw, err := s.transport.Receive(ctx); err == nil {
				if _, body, err := splitFrame(raw); err == nil {
					if ack, err := protocol.DecodeAckResponse(body); err == nil && ack.Tail.IsError() {
						closeErr = NewServerError(ack.Tail.ErrorCode, ack.Tail.ErrorMessage)
					}
				}
			}
		}
		s.transport.Close()
	}

	s.state.TransitionTo(Closed, nil, nil)
	s.events.Emit(EventClose, nil)
	if closeErr != nil {
		return s.fail(closeErr)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.events.Emit(EventError, err)
	return err
}

// splitFrame separates a transport.Transport.Receive result (CAS info
// prefix followed by body) back into its two parts.
func splitFrame(raw []byte) (protocol.CASInfo, []byte, error) {
	if len(raw) < protocol.CASInfoSize {
		return protocol.CASInfo{}, nil, fmt.Errorf("client: response shorter than CAS info prefix")
	}
	var cas protocol.CASInfo
	copy(cas[:], raw[:protocol.CASInfoSize])
	return cas, raw[protocol.CASInfoSize:], nil
}
