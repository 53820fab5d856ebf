package protocol

import "fmt"

// FuncCode is the single byte that selects the server-side operation for a
// request frame. The broker's own numeric enumeration is out of scope for
// this client (spec ties the client's hands only on close-database, which
// the end-to-end fixture pins at 7); the remaining codes are this
// implementation's own consistent choice.
type FuncCode byte

const (
	FuncClientInfoExchange FuncCode = 1
	FuncOpenDatabase       FuncCode = 2
	FuncGetEngineVersion   FuncCode = 3
	FuncExecuteQuery       FuncCode = 4
	FuncExecuteBatch       FuncCode = 5
	FuncFetch              FuncCode = 6
	FuncCloseDatabase      FuncCode = 7
	FuncCloseQuery         FuncCode = 8
	FuncSetAutoCommit      FuncCode = 9
	FuncCommit             FuncCode = 10
	FuncRollback           FuncCode = 11
)

// Fixed field widths used by the open-database request, per spec.
const (
	dbNameWidth   = 32
	userWidth     = 32
	passwordWidth = 32
	extInfoWidth  = 512
	reservedWidth = 20

	// DefaultFetchSize is the page size a fetch request asks for when the
	// caller doesn't override it.
	DefaultFetchSize = 100
)

// ---- Client info exchange (broker rendezvous) ----

// ClientInfoRequest carries the magic/client-id payload sent to the
// broker's rendezvous port.
type ClientInfoRequest struct {
	ClientVersion int32
	ClientID      string
}

// EncodeClientInfoRequest builds the rendezvous request frame.
func EncodeClientInfoRequest(cas CASInfo, req ClientInfoRequest) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncClientInfoExchange))
	w.WriteInt32(req.ClientVersion)
	w.WriteCString(req.ClientID)
	return w.Frame(cas)
}

// ClientInfoResponse carries the worker port the broker assigned this
// session for the login phase.
type ClientInfoResponse struct {
	Tail ResponseTail
	Port int32
}

// DecodeClientInfoResponse parses a rendezvous response body.
func DecodeClientInfoResponse(body []byte) (ClientInfoResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return ClientInfoResponse{}, err
	}
	if tail.IsError() {
		return ClientInfoResponse{Tail: tail}, nil
	}
	port, err := r.ReadInt32()
	if err != nil {
		return ClientInfoResponse{}, fmt.Errorf("protocol: decode client info response: %w", err)
	}
	return ClientInfoResponse{Tail: tail, Port: port}, nil
}

// ---- Open database (authenticate & bind) ----

// OpenDatabaseRequest carries the login credentials sent to the assigned
// worker port.
type OpenDatabaseRequest struct {
	Database string
	User     string
	Password string
}

// EncodeOpenDatabaseRequest builds the login request frame.
func EncodeOpenDatabaseRequest(cas CASInfo, req OpenDatabaseRequest) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncOpenDatabase))
	w.WriteFixedString(req.Database, dbNameWidth)
	w.WriteFixedString(req.User, userWidth)
	w.WriteFixedString(req.Password, passwordWidth)
	w.WriteFiller(extInfoWidth, 0)
	w.WriteFiller(reservedWidth, 0)
	return w.Frame(cas)
}

// BrokerInfo is the immutable record of broker capabilities returned at
// the end of the handshake.
type BrokerInfo struct {
	DBType                byte
	StatementPollingFlag  byte
	ProtocolVersion       byte
	Raw                   [8]byte
}

// DecodeBrokerInfo extracts the semantically used slots from the 8 raw
// broker-info bytes.
func DecodeBrokerInfo(b [8]byte) BrokerInfo {
	return BrokerInfo{
		DBType:               b[0],
		StatementPollingFlag: b[2],
		ProtocolVersion:      b[4],
		Raw:                  b,
	}
}

// OpenDatabaseResponse is the decoded login response. CASInfo is the
// frame-level token the caller must echo on every subsequent request.
type OpenDatabaseResponse struct {
	Tail       ResponseTail
	CASInfo    CASInfo
	BrokerInfo BrokerInfo
	SessionID  int32
}

// DecodeOpenDatabaseResponse parses a login response body. cas is the CAS
// info token carried on the frame this body arrived in.
func DecodeOpenDatabaseResponse(cas CASInfo, body []byte) (OpenDatabaseResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return OpenDatabaseResponse{}, err
	}
	if tail.IsError() {
		return OpenDatabaseResponse{Tail: tail, CASInfo: cas}, nil
	}
	rawBrokerInfo, err := r.ReadBytes(8)
	if err != nil {
		return OpenDatabaseResponse{}, fmt.Errorf("protocol: decode open database response: %w", err)
	}
	var raw [8]byte
	copy(raw[:], rawBrokerInfo)
	sessionID, err := r.ReadInt32()
	if err != nil {
		return OpenDatabaseResponse{}, fmt.Errorf("protocol: decode open database response: %w", err)
	}
	return OpenDatabaseResponse{
		Tail:       tail,
		CASInfo:    cas,
		BrokerInfo: DecodeBrokerInfo(raw),
		SessionID:  sessionID,
	}, nil
}

// ---- Get engine version ----

// EncodeGetEngineVersionRequest builds the (empty-bodied) version request.
func EncodeGetEngineVersionRequest(cas CASInfo) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncGetEngineVersion))
	return w.Frame(cas)
}

// EngineVersionResponse carries the decoded version string.
type EngineVersionResponse struct {
	Tail    ResponseTail
	Version string
}

// DecodeEngineVersionResponse parses a version response body.
func DecodeEngineVersionResponse(body []byte) (EngineVersionResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return EngineVersionResponse{}, err
	}
	if tail.IsError() {
		return EngineVersionResponse{Tail: tail}, nil
	}
	version, err := r.ReadCString()
	if err != nil {
		return EngineVersionResponse{}, fmt.Errorf("protocol: decode engine version response: %w", err)
	}
	return EngineVersionResponse{Tail: tail, Version: version}, nil
}

// ---- Column descriptors & row pages, shared by execute and fetch ----

// ColumnDescriptor names one result-set column. Value typing beyond the raw
// wire bytes is delegated to the RowMapper collaborator.
type ColumnDescriptor struct {
	Name string
	Type byte
}

// Row is one tuple's raw column values, in column-descriptor order.
type Row [][]byte

func writeColumns(w *Writer, cols []ColumnDescriptor) {
	w.WriteInt32(int32(len(cols)))
	for _, c := range cols {
		w.WriteCString(c.Name)
		w.WriteByte(c.Type)
	}
}

func readColumns(r *Reader) ([]ColumnDescriptor, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("protocol: read column count: %w", err)
	}
	cols := make([]ColumnDescriptor, 0, n)
	for i := int32(0); i < n; i++ {
		name, err := r.ReadCString()
		if err != nil {
			return nil, fmt.Errorf("protocol: read column name: %w", err)
		}
		typ, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("protocol: read column type: %w", err)
		}
		cols = append(cols, ColumnDescriptor{Name: name, Type: typ})
	}
	return cols, nil
}

func writeRows(w *Writer, cols []ColumnDescriptor, rows []Row) {
	w.WriteInt32(int32(len(rows)))
	for _, row := range rows {
		for i := range cols {
			var v []byte
			if i < len(row) {
				v = row[i]
			}
			w.WriteInt32(int32(len(v)))
			w.WriteBytes(v)
		}
	}
}

func readRows(r *Reader, cols []ColumnDescriptor) ([]Row, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("protocol: read tuple count: %w", err)
	}
	rows := make([]Row, 0, n)
	for i := int32(0); i < n; i++ {
		row := make(Row, len(cols))
		for c := range cols {
			vlen, err := r.ReadInt32()
			if err != nil {
				return nil, fmt.Errorf("protocol: read value length: %w", err)
			}
			v, err := r.ReadBytes(int(vlen))
			if err != nil {
				return nil, fmt.Errorf("protocol: read value bytes: %w", err)
			}
			row[c] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ---- Execute query ----

// ExecuteQueryRequest carries the SQL text and execution mode.
type ExecuteQueryRequest struct {
	SQL        string
	AutoCommit bool
}

// EncodeExecuteQueryRequest builds the query request frame.
func EncodeExecuteQueryRequest(cas CASInfo, req ExecuteQueryRequest) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncExecuteQuery))
	w.WriteInt32(int32(len(req.SQL)))
	w.WriteBytes([]byte(req.SQL))
	w.WriteByte(boolByte(req.AutoCommit))
	w.WriteFiller(1, 0) // reserved flags byte
	return w.Frame(cas)
}

// ExecuteQueryResponse is the decoded response to a successful or failed
// query execution, including the first page of rows.
type ExecuteQueryResponse struct {
	Tail       ResponseTail
	Handle     int32
	TotalCount int32
	Columns    []ColumnDescriptor
	Rows       []Row
}

// DecodeExecuteQueryResponse parses an execute-query response body.
func DecodeExecuteQueryResponse(body []byte) (ExecuteQueryResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return ExecuteQueryResponse{}, err
	}
	if tail.IsError() {
		return ExecuteQueryResponse{Tail: tail}, nil
	}
	handle, err := r.ReadInt32()
	if err != nil {
		return ExecuteQueryResponse{}, fmt.Errorf("protocol: decode execute response: %w", err)
	}
	total, err := r.ReadInt32()
	if err != nil {
		return ExecuteQueryResponse{}, fmt.Errorf("protocol: decode execute response: %w", err)
	}
	cols, err := readColumns(r)
	if err != nil {
		return ExecuteQueryResponse{}, err
	}
	rows, err := readRows(r, cols)
	if err != nil {
		return ExecuteQueryResponse{}, err
	}
	return ExecuteQueryResponse{Tail: tail, Handle: handle, TotalCount: total, Columns: cols, Rows: rows}, nil
}

// ---- Batch execute (no-query) ----

// ExecuteBatchRequest carries a list of statements run for their side
// effects, not their row results.
type ExecuteBatchRequest struct {
	Statements []string
	AutoCommit bool
}

// EncodeExecuteBatchRequest builds the batch-execute request frame.
func EncodeExecuteBatchRequest(cas CASInfo, req ExecuteBatchRequest) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncExecuteBatch))
	w.WriteInt32(int32(len(req.Statements)))
	for _, s := range req.Statements {
		w.WriteInt32(int32(len(s)))
		w.WriteBytes([]byte(s))
	}
	w.WriteByte(boolByte(req.AutoCommit))
	return w.Frame(cas)
}

// ExecuteBatchResponse carries one affected-row count per statement.
type ExecuteBatchResponse struct {
	Tail          ResponseTail
	AffectedCounts []int32
}

// DecodeExecuteBatchResponse parses a batch-execute response body.
func DecodeExecuteBatchResponse(body []byte) (ExecuteBatchResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return ExecuteBatchResponse{}, err
	}
	if tail.IsError() {
		return ExecuteBatchResponse{Tail: tail}, nil
	}
	n, err := r.ReadInt32()
	if err != nil {
		return ExecuteBatchResponse{}, fmt.Errorf("protocol: decode batch response: %w", err)
	}
	counts := make([]int32, 0, n)
	for i := int32(0); i < n; i++ {
		c, err := r.ReadInt32()
		if err != nil {
			return ExecuteBatchResponse{}, fmt.Errorf("protocol: decode batch response: %w", err)
		}
		counts = append(counts, c)
	}
	return ExecuteBatchResponse{Tail: tail, AffectedCounts: counts}, nil
}

// ---- Fetch ----

// FetchRequest asks the server for the next page of an open result set.
type FetchRequest struct {
	Handle         int32
	Start          int32
	FetchSize      int32
	CaseSensitive  bool
	ResultSetIndex int32
}

// EncodeFetchRequest builds the fetch request frame.
func EncodeFetchRequest(cas CASInfo, req FetchRequest) []byte {
	fetchSize := req.FetchSize
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	w := NewWriter()
	w.WriteByte(byte(FuncFetch))
	w.WriteInt32(req.Handle)
	w.WriteInt32(req.Start)
	w.WriteInt32(fetchSize)
	w.WriteByte(boolByte(req.CaseSensitive))
	w.WriteInt32(req.ResultSetIndex)
	return w.Frame(cas)
}

// FetchResponse is the decoded next page of rows. Columns are not
// re-sent on fetch; callers decode against the columns captured at
// execute time.
type FetchResponse struct {
	Tail  ResponseTail
	Count int32
	Rows  []Row
}

// DecodeFetchResponse parses a fetch response body against the column
// descriptors captured when the query handle was opened.
func DecodeFetchResponse(body []byte, cols []ColumnDescriptor) (FetchResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return FetchResponse{}, err
	}
	if tail.IsError() {
		return FetchResponse{Tail: tail}, nil
	}
	count, err := r.ReadInt32()
	if err != nil {
		return FetchResponse{}, fmt.Errorf("protocol: decode fetch response: %w", err)
	}
	rows, err := readRows(r, cols)
	if err != nil {
		return FetchResponse{}, err
	}
	return FetchResponse{Tail: tail, Count: count, Rows: rows}, nil
}

// ---- Close query ----

// EncodeCloseQueryRequest builds the close-query request frame.
func EncodeCloseQueryRequest(cas CASInfo, handle int32) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncCloseQuery))
	w.WriteInt32(handle)
	return w.Frame(cas)
}

// AckResponse is the decoded response shared by the acknowledgement-only
// operations: close query, set auto-commit mode, commit, rollback, and
// close database.
type AckResponse struct {
	Tail ResponseTail
}

// DecodeAckResponse parses any response whose only field beyond the
// response tail is the acknowledgement itself.
func DecodeAckResponse(body []byte) (AckResponse, error) {
	r := NewReader(body)
	tail, err := ReadResponseTail(r)
	if err != nil {
		return AckResponse{}, err
	}
	return AckResponse{Tail: tail}, nil
}

// ---- Set auto-commit mode ----

// EncodeSetAutoCommitRequest builds the set-auto-commit request frame.
func EncodeSetAutoCommitRequest(cas CASInfo, on bool) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncSetAutoCommit))
	w.WriteByte(boolByte(on))
	return w.Frame(cas)
}

// ---- Commit / Rollback ----

// EncodeCommitRequest builds the (empty-bodied) commit request frame.
func EncodeCommitRequest(cas CASInfo) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncCommit))
	return w.Frame(cas)
}

// EncodeRollbackRequest builds the (empty-bodied) rollback request frame.
func EncodeRollbackRequest(cas CASInfo) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncRollback))
	return w.Frame(cas)
}

// ---- Close database ----

// EncodeCloseDatabaseRequest builds the (empty-bodied) close-database
// request frame.
func EncodeCloseDatabaseRequest(cas CASInfo) []byte {
	w := NewWriter()
	w.WriteByte(byte(FuncCloseDatabase))
	return w.Frame(cas)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
