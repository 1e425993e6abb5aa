package hostws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/gorilla/websocket"
)

type fakeHost struct {
	password  string
	salt      string
	challenge string
	actions   []actionDocument
	failWith  string

	mutex    sync.Mutex
	received []request
	conns    []*websocket.Conn
}

func (host *fakeHost) ServeHTTP(writer http.ResponseWriter, httpRequest *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(writer, httpRequest, nil)
	if err != nil {
		return
	}
	host.mutex.Lock()
	host.conns = append(host.conns, conn)
	host.mutex.Unlock()
	defer conn.Close()

	hello := map[string]any{"request": requestHello, "info": map[string]any{"name": "host"}}
	if host.password != "" {
		hello["authentication"] = authChallenge{Challenge: host.challenge, Salt: host.salt}
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}
	for {
		var incoming request
		if err := conn.ReadJSON(&incoming); err != nil {
			return
		}
		host.mutex.Lock()
		host.received = append(host.received, incoming)
		host.mutex.Unlock()
		reply := map[string]any{"id": incoming.ID, "status": statusOK}
		switch {
		case incoming.Request == requestAuthenticate && incoming.Authentication != AuthenticationProof(host.password, host.salt, host.challenge):
			reply["status"] = "error"
			reply["error"] = "authentication failed"
		case host.failWith != "" && incoming.Request != requestAuthenticate:
			reply["status"] = "error"
			reply["error"] = host.failWith
		case incoming.Request == requestGetActions:
			reply["actions"] = host.actions
			reply["count"] = len(host.actions)
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (host *fakeHost) requests() []request {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	return append([]request(nil), host.received...)
}

func (host *fakeHost) dropConnections() {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	for _, conn := range host.conns {
		_ = conn.Close()
	}
	host.conns = nil
}

type recordingObserver struct {
	mutex     sync.Mutex
	requests  []string
	failures  int
	connected []bool
}

func (observer *recordingObserver) ObserveHostRequest(request string, err error) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.requests = append(observer.requests, request)
	if err != nil {
		observer.failures++
	}
}

func (observer *recordingObserver) SetHostConnected(connected bool) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.connected = append(observer.connected, connected)
}

func startHost(test *testing.T, host *fakeHost) string {
	test.Helper()
	server := httptest.NewServer(host)
	test.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestClient(test *testing.T, url string, options ...Option) *Client {
	test.Helper()
	client := New(url, append([]Option{WithTimeout(2 * time.Second), WithHelloWait(time.Second)}, options...)...)
	test.Cleanup(func() { _ = client.Close() })
	return client
}

func TestListActionsMapsEnabledFlag(test *testing.T) {
	test.Parallel()
	host := &fakeHost{actions: []actionDocument{
		{ID: "1", Name: "[Smash SFX] - Fight", Enabled: true},
		{ID: "2", Name: "[Smash SFX] - Zombie", Enabled: false},
	}}
	client := newTestClient(test, startHost(test, host))

	actions, err := client.ListActions(context.Background())
	if err != nil {
		test.Fatalf("list actions: %v", err)
	}
	want := []points.Action{{Name: "[Smash SFX] - Fight", Enabled: true}, {Name: "[Smash SFX] - Zombie", Enabled: false}}
	if len(actions) != len(want) || actions[0] != want[0] || actions[1] != want[1] {
		test.Fatalf("expected %+v, got %+v", want, actions)
	}
}

func TestRunActionAndSendMessageShapeRequests(test *testing.T) {
	test.Parallel()
	host := &fakeHost{}
	observer := &recordingObserver{}
	client := newTestClient(test, startHost(test, host), WithObserver(observer))
	ctx := context.Background()

	if err := client.RunAction(ctx, "[Song Bite] - Dodge Bites", false); err != nil {
		test.Fatalf("run action: %v", err)
	}
	if err := client.SendChatMessage(ctx, points.PlatformYouTube, "hello chat", true); err != nil {
		test.Fatalf("send message: %v", err)
	}

	received := host.requests()
	if len(received) != 2 {
		test.Fatalf("expected 2 requests, got %+v", received)
	}
	if received[0].Request != requestDoAction || received[0].Action == nil || received[0].Action.Name != "[Song Bite] - Dodge Bites" {
		test.Fatalf("unexpected action request %+v", received[0])
	}
	message := received[1]
	if message.Request != requestSendMessage || message.Platform != "youtube" || message.Message != "hello chat" || message.Bot == nil || !*message.Bot {
		test.Fatalf("unexpected message request %+v", message)
	}
	if received[0].ID == "" || received[0].ID == received[1].ID {
		test.Fatalf("expected distinct request ids")
	}
	if len(observer.requests) != 2 || observer.failures != 0 || len(observer.connected) == 0 || !observer.connected[0] {
		test.Fatalf("unexpected observations %+v", observer)
	}
}

func TestHostErrorStatusIsReported(test *testing.T) {
	test.Parallel()
	host := &fakeHost{failWith: "action not found"}
	client := newTestClient(test, startHost(test, host))

	err := client.RunAction(context.Background(), "missing", true)
	if !errors.Is(err, ErrRequestFailed) || !strings.Contains(err.Error(), "action not found") {
		test.Fatalf("expected request failure, got %v", err)
	}
	var operationError points.OperationError
	if !errors.As(err, &operationError) || operationError.Subject() != requestDoAction {
		test.Fatalf("expected wrapped operation error, got %v", err)
	}
}

func TestAuthenticatesWhenChallenged(test *testing.T) {
	test.Parallel()
	host := &fakeHost{password: "hunter2", salt: "salt", challenge: "challenge"}
	url := startHost(test, host)

	client := newTestClient(test, url, WithPassword("hunter2"))
	if err := client.Connect(context.Background()); err != nil {
		test.Fatalf("connect: %v", err)
	}
	received := host.requests()
	if len(received) != 1 || received[0].Request != requestAuthenticate {
		test.Fatalf("expected authenticate request, got %+v", received)
	}

	anonymous := newTestClient(test, url)
	if err := anonymous.Connect(context.Background()); !errors.Is(err, ErrAuthenticationRequired) {
		test.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}

	wrong := newTestClient(test, url, WithPassword("nope"))
	if err := wrong.Connect(context.Background()); !errors.Is(err, ErrRequestFailed) {
		test.Fatalf("expected rejected authentication, got %v", err)
	}
}

func TestReconnectsAfterDrop(test *testing.T) {
	test.Parallel()
	host := &fakeHost{actions: []actionDocument{{Name: "a", Enabled: true}}}
	client := newTestClient(test, startHost(test, host))
	ctx := context.Background()

	if _, err := client.ListActions(ctx); err != nil {
		test.Fatalf("first list: %v", err)
	}
	host.dropConnections()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := client.ListActions(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			test.Fatalf("client did not reconnect: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDialFailureIsWrapped(test *testing.T) {
	test.Parallel()
	client := New("ws://127.0.0.1:1/", WithTimeout(200*time.Millisecond))
	err := client.Connect(context.Background())
	var operationError points.OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeDial {
		test.Fatalf("expected dial error, got %v", err)
	}
}

func TestAuthenticationProofIsStable(test *testing.T) {
	test.Parallel()
	first := AuthenticationProof("password", "salt", "challenge")
	if first != AuthenticationProof("password", "salt", "challenge") {
		test.Fatalf("proof must be deterministic")
	}
	if first == AuthenticationProof("password", "salt", "other") {
		test.Fatalf("proof must depend on the challenge")
	}
}
