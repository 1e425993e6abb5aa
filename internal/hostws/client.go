// Package hostws talks to the streaming host's WebSocket API. It lists and runs host actions and
// sends chat messages through the host's connected accounts.
package hostws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	requestHello        = "Hello"
	requestAuthenticate = "Authenticate"
	requestGetActions   = "GetActions"
	requestDoAction     = "DoAction"
	requestSendMessage  = "SendMessage"

	statusOK = "ok"

	defaultTimeout     = 5 * time.Second
	defaultHelloWait   = 2 * time.Second
	errorOperationHost = "host"
	errorSubjectSocket = "socket"
	errorCodeDial      = "dial"
	errorCodeAuth      = "auth"
	errorCodeRequest   = "request"
)

var (
	// ErrClosed is returned for requests in flight when the connection drops.
	ErrClosed = errors.New("host connection closed")
	// ErrAuthenticationRequired is returned when the host demands a password and none is configured.
	ErrAuthenticationRequired = errors.New("host requires authentication")
	// ErrRequestFailed wraps a non-ok status reported by the host.
	ErrRequestFailed = errors.New("host request failed")
)

// Observer receives request outcomes and connection state, typically for metrics.
type Observer interface {
	ObserveHostRequest(request string, err error)
	SetHostConnected(connected bool)
}

// Option configures a Client.
type Option func(*Client)

// WithPassword sets the password used when the host asks for authentication.
func WithPassword(password string) Option {
	return func(client *Client) {
		client.password = password
	}
}

// WithTimeout bounds every request that has no deadline of its own.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithHelloWait bounds how long a new connection waits for the host greeting.
func WithHelloWait(wait time.Duration) Option {
	return func(client *Client) {
		if wait > 0 {
			client.helloWait = wait
		}
	}
}

// WithLogger wires a zap logger for connection events.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithObserver wires request and connection observations.
func WithObserver(observer Observer) Option {
	return func(client *Client) {
		client.observer = observer
	}
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(client *Client) {
		if dialer != nil {
			client.dialer = dialer
		}
	}
}

// Client is a reconnecting request/response client for the host API. It implements
// points.ActionRegistry and points.ChatSender.
type Client struct {
	url       string
	password  string
	timeout   time.Duration
	helloWait time.Duration
	dialer    *websocket.Dialer
	logger    *zap.Logger
	observer  Observer

	mutex   sync.Mutex
	session *session
}

// New returns a Client for url. The connection is opened lazily on the first request.
func New(url string, options ...Option) *Client {
	client := &Client{
		url:       url,
		timeout:   defaultTimeout,
		helloWait: defaultHelloWait,
		dialer:    websocket.DefaultDialer,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client
}

type actionReference struct {
	Name string `json:"name"`
}

type actionDocument struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Group   string `json:"group"`
	Enabled bool   `json:"enabled"`
}

type authChallenge struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

type request struct {
	Request        string           `json:"request"`
	ID             string           `json:"id"`
	Action         *actionReference `json:"action,omitempty"`
	Args           map[string]any   `json:"args,omitempty"`
	Authentication string           `json:"authentication,omitempty"`
	Platform       string           `json:"platform,omitempty"`
	Message        string           `json:"message,omitempty"`
	Bot            *bool            `json:"bot,omitempty"`
	Internal       *bool            `json:"internal,omitempty"`
}

type response struct {
	ID             string           `json:"id"`
	Request        string           `json:"request"`
	Status         string           `json:"status"`
	Error          string           `json:"error"`
	Actions        []actionDocument `json:"actions"`
	Authentication *authChallenge   `json:"authentication"`
}

// Connect opens the connection eagerly; requests connect on demand otherwise.
func (client *Client) Connect(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.timeout)
		defer cancel()
	}
	_, err := client.current(ctx)
	return err
}

// ListActions returns every host action with its enabled flag.
func (client *Client) ListActions(ctx context.Context) ([]points.Action, error) {
	reply, err := client.do(ctx, request{Request: requestGetActions})
	if err != nil {
		return nil, err
	}
	actions := make([]points.Action, 0, len(reply.Actions))
	for _, action := range reply.Actions {
		actions = append(actions, points.Action{Name: action.Name, Enabled: action.Enabled})
	}
	return actions, nil
}

// RunAction asks the host to run the named action. The host acknowledges the request once the
// action is queued, so waitForCompletion only affects how long the caller is willing to wait.
func (client *Client) RunAction(ctx context.Context, name string, waitForCompletion bool) error {
	if !waitForCompletion {
		ctx = context.WithoutCancel(ctx)
	}
	_, err := client.do(ctx, request{Request: requestDoAction, Action: &actionReference{Name: name}, Args: map[string]any{}})
	return err
}

// SendChatMessage posts text to platform through the host's broadcaster or bot account.
func (client *Client) SendChatMessage(ctx context.Context, platform points.Platform, text string, useBotAccount bool) error {
	internal := true
	_, err := client.do(ctx, request{
		Request:  requestSendMessage,
		Platform: platform.String(),
		Message:  text,
		Bot:      &useBotAccount,
		Internal: &internal,
	})
	return err
}

// Close drops the current connection. Later requests reconnect.
func (client *Client) Close() error {
	client.mutex.Lock()
	current := client.session
	client.session = nil
	client.mutex.Unlock()
	if current == nil {
		return nil
	}
	return current.close()
}

func (client *Client) do(ctx context.Context, outgoing request) (response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.timeout)
		defer cancel()
	}
	reply, err := client.roundTrip(ctx, outgoing)
	if client.observer != nil {
		client.observer.ObserveHostRequest(outgoing.Request, err)
	}
	return reply, err
}

func (client *Client) roundTrip(ctx context.Context, outgoing request) (response, error) {
	current, err := client.current(ctx)
	if err != nil {
		return response{}, err
	}
	reply, err := current.call(ctx, outgoing)
	if errors.Is(err, ErrClosed) {
		client.forget(current)
	}
	if err != nil {
		return response{}, points.WrapError(errorOperationHost, outgoing.Request, errorCodeRequest, err)
	}
	return reply, nil
}

func (client *Client) current(ctx context.Context) (*session, error) {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.session != nil && !client.session.isClosed() {
		return client.session, nil
	}
	opened, err := client.open(ctx)
	if err != nil {
		return nil, err
	}
	client.session = opened
	return opened, nil
}

func (client *Client) forget(stale *session) {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.session == stale {
		client.session = nil
	}
}

func (client *Client) open(ctx context.Context) (*session, error) {
	conn, _, err := client.dialer.DialContext(ctx, client.url, http.Header{})
	if err != nil {
		return nil, points.WrapError(errorOperationHost, errorSubjectSocket, errorCodeDial, err)
	}
	opened := newSession(conn, client.logger, client.onDisconnect)
	client.logger.Info("host connected", zap.String("url", client.url))
	if client.observer != nil {
		client.observer.SetHostConnected(true)
	}

	hello, err := opened.awaitHello(ctx, client.helloWait)
	if err != nil {
		_ = opened.close()
		return nil, points.WrapError(errorOperationHost, errorSubjectSocket, errorCodeDial, err)
	}
	if hello == nil || hello.Authentication == nil {
		return opened, nil
	}
	if client.password == "" {
		_ = opened.close()
		return nil, points.WrapError(errorOperationHost, errorSubjectSocket, errorCodeAuth, ErrAuthenticationRequired)
	}
	proof := AuthenticationProof(client.password, hello.Authentication.Salt, hello.Authentication.Challenge)
	if _, err := opened.call(ctx, request{Request: requestAuthenticate, Authentication: proof}); err != nil {
		_ = opened.close()
		return nil, points.WrapError(errorOperationHost, errorSubjectSocket, errorCodeAuth, err)
	}
	return opened, nil
}

func (client *Client) onDisconnect(err error) {
	client.logger.Warn("host disconnected", zap.String("url", client.url), zap.Error(err))
	if client.observer != nil {
		client.observer.SetHostConnected(false)
	}
}

// AuthenticationProof derives the host's challenge response from the password, salt and challenge.
func AuthenticationProof(password string, salt string, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	encodedSecret := base64.StdEncoding.EncodeToString(secret[:])
	proof := sha256.Sum256([]byte(encodedSecret + challenge))
	return base64.StdEncoding.EncodeToString(proof[:])
}

type session struct {
	conn         *websocket.Conn
	logger       *zap.Logger
	onDisconnect func(error)

	writeMutex sync.Mutex
	mutex      sync.Mutex
	pending    map[string]chan response
	hello      chan response
	done       chan struct{}
	closeOnce  sync.Once
}

func newSession(conn *websocket.Conn, logger *zap.Logger, onDisconnect func(error)) *session {
	opened := &session{
		conn:         conn,
		logger:       logger,
		onDisconnect: onDisconnect,
		pending:      map[string]chan response{},
		hello:        make(chan response, 1),
		done:         make(chan struct{}),
	}
	go opened.readLoop()
	return opened
}

func (current *session) readLoop() {
	var readErr error
	defer func() {
		current.shutdown()
		if current.onDisconnect != nil {
			current.onDisconnect(readErr)
		}
	}()
	for {
		_, payload, err := current.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		var incoming response
		if err := json.Unmarshal(payload, &incoming); err != nil {
			current.logger.Debug("ignoring malformed host message", zap.Error(err))
			continue
		}
		if incoming.Request == requestHello {
			select {
			case current.hello <- incoming:
			default:
			}
			continue
		}
		if incoming.ID == "" {
			continue
		}
		current.mutex.Lock()
		waiter, ok := current.pending[incoming.ID]
		delete(current.pending, incoming.ID)
		current.mutex.Unlock()
		if ok {
			waiter <- incoming
		}
	}
}

func (current *session) awaitHello(ctx context.Context, wait time.Duration) (*response, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case hello := <-current.hello:
		return &hello, nil
	case <-timer.C:
		return nil, nil
	case <-current.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (current *session) call(ctx context.Context, outgoing request) (response, error) {
	outgoing.ID = uuid.NewString()
	waiter := make(chan response, 1)
	current.mutex.Lock()
	if current.pending == nil {
		current.mutex.Unlock()
		return response{}, ErrClosed
	}
	current.pending[outgoing.ID] = waiter
	current.mutex.Unlock()

	if err := current.write(ctx, outgoing); err != nil {
		current.drop(outgoing.ID)
		return response{}, err
	}

	select {
	case reply := <-waiter:
		if reply.Status != "" && reply.Status != statusOK {
			return reply, fmt.Errorf("%w: %s %s", ErrRequestFailed, outgoing.Request, reply.Error)
		}
		return reply, nil
	case <-current.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		current.drop(outgoing.ID)
		return response{}, ctx.Err()
	}
}

func (current *session) write(ctx context.Context, outgoing request) error {
	current.writeMutex.Lock()
	defer current.writeMutex.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = current.conn.SetWriteDeadline(deadline)
	}
	if err := current.conn.WriteJSON(outgoing); err != nil {
		return errors.Join(ErrClosed, err)
	}
	return nil
}

func (current *session) drop(id string) {
	current.mutex.Lock()
	defer current.mutex.Unlock()
	delete(current.pending, id)
}

func (current *session) isClosed() bool {
	select {
	case <-current.done:
		return true
	default:
		return false
	}
}

func (current *session) shutdown() {
	current.closeOnce.Do(func() {
		current.mutex.Lock()
		current.pending = nil
		current.mutex.Unlock()
		close(current.done)
	})
}

func (current *session) close() error {
	current.writeMutex.Lock()
	_ = current.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	current.writeMutex.Unlock()
	current.shutdown()
	return current.conn.Close()
}
