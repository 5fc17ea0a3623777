package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"relay/internal/account"
	"relay/internal/dispatch/bus"
	"relay/internal/dispatch/cache"
	"relay/internal/dispatch/message"
	dispatchmetrics "relay/internal/dispatch/metrics"
	jwttoken "relay/internal/jwt_token"
	"relay/internal/platform/events"
	"relay/internal/platform/logger"
	"relay/internal/platform/metrics"
	"relay/internal/platform/middleware"
	"relay/pkg/correlation"
	"relay/pkg/testutil"
)

type TransportSuite struct {
	suite.Suite
	server *httptest.Server
	jwt    *jwttoken.JWTService
	store  *account.InMemoryStore
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	reg := prometheus.NewRegistry()
	log := logger.New("error", false)

	commands := bus.NewCommandBus(bus.WithMetrics(dispatchmetrics.New(reg)), bus.WithLogger(log))
	queries := bus.NewQueryBus(cache.NewMemory(), bus.WithMetrics(dispatchmetrics.New(prometheus.NewRegistry())), bus.WithLogger(log))

	s.store = account.NewInMemoryStore()
	s.Require().NoError(account.Wire(commands, queries, s.store, events.NewMemory(), log))

	s.jwt = jwttoken.NewJWTService("test-signing-key", "relay", "relay-api")
	handler := New(commands, queries, log, metrics.New(reg), jwttoken.NewJWTServiceAdapter(s.jwt),
		HealthCheck{Name: "store", Check: func() error { return nil }},
	)
	s.server = httptest.NewServer(handler.Router(reg))
}

func (s *TransportSuite) TearDownTest() {
	s.server.Close()
}

func (s *TransportSuite) token(p correlation.Principal) string {
	token, err := s.jwt.GenerateAccessToken(p, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *TransportSuite) tellerToken() string {
	return s.token(correlation.Principal{Subject: "teller-1", Scopes: []string{"accounts:write"}})
}

func (s *TransportSuite) post(path, token string, body any) (*http.Response, map[string]any) {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	var decoded map[string]any
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (s *TransportSuite) TestCommandHappyPath() {
	resp, body := s.post("/v1/commands/account.create", s.tellerToken(), dispatchRequest{
		Metadata: map[string]string{"owner": "alice", "currency": "EUR"},
	})

	s.Equal(http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	s.Equal("alice", result["owner"])
	s.Equal("active", result["status"])
	s.NotEmpty(resp.Header.Get("X-Request-Id"))
}

func (s *TransportSuite) TestMissingToken() {
	resp, body := s.post("/v1/commands/account.create", "", dispatchRequest{
		Metadata: map[string]string{"owner": "alice", "currency": "EUR"},
	})

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("unauthorized", body["error"])
}

func (s *TransportSuite) TestExpiredToken() {
	expired, err := s.jwt.GenerateAccessToken(correlation.Principal{Subject: "teller-1"}, -time.Hour)
	s.Require().NoError(err)

	resp, _ := s.post("/v1/commands/account.create", expired, dispatchRequest{})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *TransportSuite) TestUnknownMessageName() {
	resp, body := s.post("/v1/commands/account.destroy", s.tellerToken(), dispatchRequest{})

	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("handler_not_found", body["error"])
}

func (s *TransportSuite) TestValidationFailure() {
	resp, body := s.post("/v1/commands/account.create", s.tellerToken(), dispatchRequest{
		Metadata: map[string]string{"currency": "EUR"},
	})

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation_failed", body["error"])
	violations := body["violations"].([]any)
	s.Require().Len(violations, 1)
	s.Contains(violations[0], "owner")
}

func (s *TransportSuite) TestAuthorizationDenied() {
	reader := s.token(correlation.Principal{Subject: "reader-1"})

	resp, body := s.post("/v1/commands/account.deposit", reader, dispatchRequest{
		Metadata: map[string]string{"account_id": "acc-1", "amount": "100"},
	})

	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("authorization_denied", body["error"])
}

func (s *TransportSuite) TestQueryRoundTrip() {
	resp, body := s.post("/v1/commands/account.create", s.tellerToken(), dispatchRequest{
		Metadata: map[string]string{"owner": "alice", "currency": "EUR"},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	id := body["result"].(map[string]any)["id"].(string)

	resp, body = s.post("/v1/queries/account.balance", s.tellerToken(), dispatchRequest{
		Metadata:  map[string]string{"account_id": id},
		Cacheable: true,
	})

	s.Equal(http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	s.Equal(id, result["account_id"])
	s.EqualValues(0, result["balance"])
}

func (s *TransportSuite) TestHandlerErrorMapsTo422() {
	resp, body := s.post("/v1/queries/account.balance", s.tellerToken(), dispatchRequest{
		Metadata: map[string]string{"account_id": "acc-missing"},
	})

	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("handler_error", body["error"])
}

func (s *TransportSuite) TestMalformedBody() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/v1/commands/account.create", bytes.NewReader([]byte("{not json")))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.tellerToken())

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *TransportSuite) TestHealthz() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *TransportSuite) TestHealthzDegraded() {
	reg := prometheus.NewRegistry()
	log := logger.New("error", false)
	commands := bus.NewCommandBus(bus.WithLogger(log))
	queries := bus.NewQueryBus(nil, bus.WithLogger(log))

	handler := New(commands, queries, log, nil, jwttoken.NewJWTServiceAdapter(s.jwt),
		HealthCheck{Name: "redis", Check: func() error { return errors.New("connection refused") }},
	)
	server := httptest.NewServer(handler.Router(reg))
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func (s *TransportSuite) TestMetricsEndpoint() {
	resp, err := s.server.Client().Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func TestMessageOptions(t *testing.T) {
	h := &Handler{}
	teller := correlation.Principal{Subject: "teller-1", Scopes: []string{"accounts:write"}}

	testutil.Given(t, "an authenticated request with a request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/commands/account.create", nil)
		req = testutil.WithPrincipal(req, teller)
		req = testutil.WithContextValue(req, middleware.ContextKeyRequestID, "req-9")

		testutil.When(t, "the envelope is assembled", func(t *testing.T) {
			opts := h.messageOptions(req, dispatchRequest{
				Metadata: map[string]string{"owner": "alice"},
			})
			cmd := message.NewCommand("account.create", opts...)

			testutil.Then(t, "it carries the principal, metadata and request id", func(t *testing.T) {
				assert.Equal(t, teller, cmd.Initiator())
				owner, ok := cmd.Meta("owner")
				require.True(t, ok)
				assert.Equal(t, "alice", owner)
				assert.Equal(t, "req-9", cmd.CorrelationID())
			})
		})
	})

	testutil.Given(t, "an explicit correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/commands/account.create", nil)
		req = testutil.WithContextValue(req, middleware.ContextKeyRequestID, "req-9")

		opts := h.messageOptions(req, dispatchRequest{CorrelationID: "corr-1"})
		cmd := message.NewCommand("account.create", opts...)

		testutil.Then(t, "it wins over the request id", func(t *testing.T) {
			assert.Equal(t, "corr-1", cmd.CorrelationID())
		})
	})
}
