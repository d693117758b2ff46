package httptransport

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	analysisservice "taxlens/internal/analysis/service"
	"taxlens/internal/authz"
	"taxlens/internal/events"
	"taxlens/internal/fhe"
	"taxlens/internal/fhe/local"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	jurisdictionservice "taxlens/internal/jurisdiction/service"
	jurisdictionstore "taxlens/internal/jurisdiction/store"
	ledgerstore "taxlens/internal/ledger/store"
	"taxlens/internal/platform/metrics"
	"taxlens/internal/profile/models"
	profileservice "taxlens/internal/profile/service"
	profilestore "taxlens/internal/profile/store"
	"taxlens/internal/recommend"
	"taxlens/pkg/platform/tx"
	"taxlens/pkg/testutil"
)

const (
	testAdminToken = "admin-token"
	testSigningKey = "test-signing-key"
)

// =============================================================================
// HTTP Handler Test Suite
// =============================================================================
// Drives the full router over the in-memory stack. Oracle deliveries are taken
// from the engine queue and posted to the callback endpoints.

type HandlerSuite struct {
	suite.Suite
	engine  *local.Engine
	log     *events.Log
	tokens  *authz.TokenService
	handler http.Handler
	// bare serves the profile routes with no middleware.
	bare http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.build(authz.AllowAll{})
}

func (s *HandlerSuite) build(authorizer authz.Authorizer) {
	var err error
	s.engine, err = local.New(make([]byte, 32))
	s.Require().NoError(err)
	s.log = events.NewLog(64)
	s.tokens = authz.NewTokenService(testSigningKey, "taxlens")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner := tx.NewLocalRunner()
	ledger := ledgerstore.NewInMemory()
	profiles := profilestore.NewInMemory()

	aggregator, err := jurisdictionservice.New(jurisdictionstore.NewInMemory(), ledger, s.engine, s.engine,
		jurisdictionservice.WithTxRunner(runner),
		jurisdictionservice.WithPublisher(s.log),
		jurisdictionservice.WithMetrics(m),
	)
	s.Require().NoError(err)
	profileSvc, err := profileservice.New(profiles, s.engine,
		profileservice.WithTxRunner(runner),
		profileservice.WithPublisher(s.log),
		profileservice.WithMetrics(m),
	)
	s.Require().NoError(err)
	analysisSvc, err := analysisservice.New(profiles, ledger, aggregator, s.engine,
		analysisservice.WithTxRunner(runner),
		analysisservice.WithPublisher(s.log),
		analysisservice.WithMetrics(m),
		analysisservice.WithAuthorizer(authorizer),
	)
	s.Require().NoError(err)
	s.engine.SetSink(analysisservice.NewRouter(analysisSvc, aggregator, nil))

	profileHandler := NewProfileHandler(profileSvc, analysisSvc, recommend.AcceptAll{}, testLogger())
	bare := chi.NewRouter()
	profileHandler.Register(bare)
	s.bare = bare

	s.handler = NewRouter(RouterConfig{Metrics: m, Gatherer: reg, Tokens: s.tokens},
		profileHandler,
		NewJurisdictionHandler(aggregator, testLogger()),
		NewCallbackHandler(analysisSvc, aggregator, testLogger()),
		NewEventHandler(s.log),
		NewDevHandler(s.engine, testAdminToken, testLogger()),
	)
}

func (s *HandlerSuite) do(req *http.Request) (int, string) {
	rr := testutil.DoRequest(s.handler, req)
	return rr.Code, rr.Body.String()
}

func (s *HandlerSuite) encrypt(text string) fhe.Handle {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/dev/encrypt", map[string]string{"text": text})
	req.Header.Set("X-Admin-Token", testAdminToken)
	rr := testutil.DoRequest(s.handler, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[encryptResponse](s.T(), rr)
	return resp.Handle
}

func (s *HandlerSuite) createProfile(assets, family, jurisdiction string) models.ProfileID {
	body := createProfileRequest{
		Assets:          s.encrypt(assets),
		FamilyStructure: s.encrypt(family),
		TaxJurisdiction: s.encrypt(jurisdiction),
	}
	rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(s.T(), http.MethodPost, "/profiles", body))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	profile := testutil.UnmarshalResponse[models.EncryptedProfile](s.T(), rr)
	s.Equal("/profiles/"+profile.ID.String(), rr.Header().Get("Location"))
	return profile.ID
}

func (s *HandlerSuite) requestAnalysis(id models.ProfileID) fhe.RequestID {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodPost, "/profiles/"+id.String()+"/analysis"))
	s.Require().Equal(http.StatusAccepted, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[requestIDResponse](s.T(), rr).RequestID
}

func (s *HandlerSuite) postCallback(path string, cb fhe.Callback) (int, string) {
	body := CallbackRequest{RequestID: cb.RequestID, Cleartexts: cb.Cleartexts, Proof: cb.Proof}
	return s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
}

func (s *HandlerSuite) shadow(id models.ProfileID) shadowResponse {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/profiles/"+id.String()+"/shadow"))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[shadowResponse](s.T(), rr)
}

// =============================================================================
// Profiles
// =============================================================================

func (s *HandlerSuite) TestCreateProfile() {
	s.Run("stores the handles and starts in submitted", func() {
		id := s.createProfile("500k", "married", "Florida")

		sh := s.shadow(id)
		s.Equal(models.StatusSubmitted, sh.Status)
		s.False(sh.Analyzed)
		s.Empty(sh.Assets)

		recorded := s.log.List(events.Filter{Type: events.TypeProfileCreated})
		s.Require().Len(recorded, 1)
		s.Equal(id, recorded[0].ProfileID)
	})

	s.Run("rejects an uninitialized handle", func() {
		var bogus fhe.Handle
		bogus[0] = 0xff
		body := createProfileRequest{Assets: bogus, FamilyStructure: bogus, TaxJurisdiction: bogus}
		code, resp := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/profiles", body))
		s.Equal(http.StatusBadRequest, code)
		s.Contains(resp, "validation_error")
	})

	s.Run("rejects malformed json", func() {
		code, _ := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/profiles", `{"assets":`))
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("rejects unknown fields", func() {
		code, _ := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/profiles", `{"salary":"1"}`))
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestGetProfile() {
	id := s.createProfile("a", "b", "c")

	s.Run("returns the encrypted profile", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/profiles/"+id.String()))
		s.Require().Equal(http.StatusOK, rr.Code)
		profile := testutil.UnmarshalResponse[models.EncryptedProfile](s.T(), rr)
		s.Equal(id, profile.ID)
		s.False(profile.Assets.IsZero())
	})

	s.Run("unknown id is 404", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/profiles/999"))
		s.Equal(http.StatusNotFound, code)
	})

	s.Run("non-numeric id is 400", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/profiles/abc"))
		s.Equal(http.StatusBadRequest, code)
	})
}

// =============================================================================
// Analysis round trip
// =============================================================================

func (s *HandlerSuite) TestAnalysisOverHTTP() {
	id := s.createProfile("500k", "married", "Florida")
	rid := s.requestAnalysis(id)
	s.Equal(models.StatusRequestIssued, s.shadow(id).Status)

	cb, ok := s.engine.TakeNext()
	s.Require().True(ok)
	s.Require().Equal(rid, cb.RequestID)

	s.Run("tampered proof is rejected", func() {
		tampered := cb
		tampered.Proof = append([]byte(nil), cb.Proof...)
		tampered.Proof[0] ^= 0xff
		code, body := s.postCallback("/oracle/callbacks/analysis", tampered)
		s.Equal(http.StatusUnprocessableEntity, code)
		s.Contains(body, "invalid_proof")
		s.False(s.shadow(id).Analyzed)
	})

	s.Run("verified delivery fills the shadow", func() {
		code, body := s.postCallback("/oracle/callbacks/analysis", cb)
		s.Require().Equal(http.StatusOK, code, body)

		sh := s.shadow(id)
		s.Equal(models.StatusAnalyzed, sh.Status)
		s.Equal("500k", sh.Assets)
		s.Equal("married", sh.FamilyStructure)
		s.Equal("Florida", sh.TaxJurisdiction)
	})

	s.Run("replaying the delivery is rejected", func() {
		code, body := s.postCallback("/oracle/callbacks/analysis", cb)
		s.Equal(http.StatusNotFound, code)
		s.Contains(body, "unknown_request")
	})

	s.Run("requesting again is a conflict", func() {
		code, body := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/profiles/"+id.String()+"/analysis"))
		s.Equal(http.StatusConflict, code)
		s.Contains(body, "already_analyzed")
	})

	s.Run("the jurisdiction counter exists", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/jurisdictions/Florida"))
		s.Require().Equal(http.StatusOK, rr.Code)
		counter := testutil.UnmarshalResponse[jurisdictionmodels.Counter](s.T(), rr)
		s.Equal(jurisdictionmodels.HashName("Florida"), counter.NameHash)
	})
}

func (s *HandlerSuite) TestAnalysisOfUnknownProfile() {
	code, _ := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/profiles/42/analysis"))
	s.Equal(http.StatusNotFound, code)
}

func (s *HandlerSuite) TestAnalysisRequiresAdvisorRole() {
	s.build(authz.NewRoleAuthorizer("advisor"))
	id := s.createProfile("a", "b", "c")
	path := "/profiles/" + id.String() + "/analysis"

	s.Run("anonymous caller is unauthorized", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodPost, path))
		s.Equal(http.StatusUnauthorized, code)
	})

	s.Run("caller without the role is forbidden", func() {
		token, err := s.tokens.Issue("alice", []string{"viewer"}, time.Hour)
		s.Require().NoError(err)
		req := testutil.NewRequest(s.T(), http.MethodPost, path)
		req.Header.Set("Authorization", "Bearer "+token)
		code, _ := s.do(req)
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("advisor may request", func() {
		token, err := s.tokens.Issue("bob", []string{"advisor"}, time.Hour)
		s.Require().NoError(err)
		req := testutil.NewRequest(s.T(), http.MethodPost, path)
		req.Header.Set("Authorization", "Bearer "+token)
		code, body := s.do(req)
		s.Equal(http.StatusAccepted, code, body)
	})

	s.Run("invalid bearer token is rejected before the handler", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, path)
		req.Header.Set("Authorization", "Bearer not-a-token")
		code, _ := s.do(req)
		s.Equal(http.StatusUnauthorized, code)
	})
}

// =============================================================================
// Recommendations
// =============================================================================

func (s *HandlerSuite) TestRecommendations() {
	id := s.createProfile("500k", "married", "Florida")
	path := "/profiles/" + id.String() + "/recommendations"
	body := recommendRequest{Options: []recommend.Option{{ID: "roth", Name: "Roth IRA"}, {ID: "hsa", Name: "HSA"}}}

	s.Run("unanalyzed profile is a conflict", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "not_analyzed")
	})

	s.requestAnalysis(id)
	s.Require().NoError(s.engine.DeliverAll(context.Background()))

	s.Run("analyzed profile gets the compatible options in order", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		resp := testutil.UnmarshalResponse[recommendResponse](s.T(), rr)
		s.Require().Len(resp.Options, 2)
		s.Equal("roth", resp.Options[0].ID)
		s.Equal("hsa", resp.Options[1].ID)
	})
}

// =============================================================================
// Jurisdictions and stats
// =============================================================================

func (s *HandlerSuite) TestJurisdictionStats() {
	for range 2 {
		id := s.createProfile("x", "y", "Texas")
		s.requestAnalysis(id)
	}
	s.Require().NoError(s.engine.DeliverAll(context.Background()))

	s.Run("lists known jurisdictions", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/jurisdictions"))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[jurisdictionListResponse](s.T(), rr)
		s.Require().Len(resp.Jurisdictions, 1)
		s.Equal("Texas", resp.Jurisdictions[0].Name)
	})

	s.Run("stats decryption delivers the count", func() {
		code, body := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/jurisdictions/Texas/stats"))
		s.Require().Equal(http.StatusAccepted, code, body)
		cb, ok := s.engine.TakeNext()
		s.Require().True(ok)

		rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(s.T(), http.MethodPost, "/oracle/callbacks/stats",
			CallbackRequest{RequestID: cb.RequestID, Cleartexts: cb.Cleartexts, Proof: cb.Proof}))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		result := testutil.UnmarshalResponse[jurisdictionservice.StatsResult](s.T(), rr)
		s.Equal("Texas", result.Jurisdiction)
		s.Equal(uint64(2), result.Count)
	})

	s.Run("unknown jurisdiction", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/jurisdictions/Nowhere/stats"))
		s.Equal(http.StatusNotFound, code)
		code, _ = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/jurisdictions/Nowhere"))
		s.Equal(http.StatusNotFound, code)
	})
}

// =============================================================================
// Events, dev and ops endpoints
// =============================================================================

func (s *HandlerSuite) TestEvents() {
	id := s.createProfile("a", "b", "c")
	s.requestAnalysis(id)

	s.Run("filters by type", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/events?type=analysis_requested"))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[eventListResponse](s.T(), rr)
		s.Require().Len(resp.Events, 1)
		s.Equal(events.TypeAnalysisRequested, resp.Events[0].Type)
		s.Equal(id, resp.Events[0].ProfileID)
	})

	s.Run("limit keeps the newest", func() {
		rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/events?limit=1"))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[eventListResponse](s.T(), rr)
		s.Require().Len(resp.Events, 1)
		s.Equal(events.TypeAnalysisRequested, resp.Events[0].Type)
	})

	s.Run("bad limit", func() {
		code, _ := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/events?limit=0"))
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestDevEncrypt() {
	s.Run("requires the admin token", func() {
		code, _ := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/dev/encrypt", map[string]string{"text": "x"}))
		s.Equal(http.StatusUnauthorized, code)
	})

	s.Run("encrypts an unsigned integer", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/dev/encrypt", `{"uint":7}`)
		req.Header.Set("X-Admin-Token", testAdminToken)
		code, body := s.do(req)
		s.Equal(http.StatusCreated, code, body)
	})

	s.Run("rejects both or neither value", func() {
		for _, body := range []string{`{}`, `{"text":"a","uint":1}`} {
			req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/dev/encrypt", body)
			req.Header.Set("X-Admin-Token", testAdminToken)
			code, _ := s.do(req)
			s.Equal(http.StatusBadRequest, code, body)
		}
	})

	s.Run("rejects text longer than one word", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/dev/encrypt", map[string]string{"text": strings.Repeat("a", 40)})
		req.Header.Set("X-Admin-Token", testAdminToken)
		code, _ := s.do(req)
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *HandlerSuite) TestOpsEndpoints() {
	code, body := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	s.Equal(http.StatusOK, code)
	s.Contains(body, "ok")

	s.createProfile("a", "b", "c")
	code, body = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusOK, code)
	s.Contains(body, "taxlens_profiles_created_total 1")

	code, _ = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/nope"))
	s.Equal(http.StatusNotFound, code)
}

func TestHexBytes(t *testing.T) {
	testutil.Given(t, "a 0x-prefixed hex string", func(t *testing.T) {
		var b HexBytes
		require.NoError(t, b.UnmarshalText([]byte("0x0aff")))

		testutil.Then(t, "it decodes and re-encodes", func(t *testing.T) {
			assert.Equal(t, HexBytes{0x0a, 0xff}, b)
			out, err := b.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, "0x0aff", string(out))
		})
	})

	testutil.Given(t, "invalid hex", func(t *testing.T) {
		var b HexBytes
		testutil.Then(t, "it is rejected", func(t *testing.T) {
			assert.Error(t, b.UnmarshalText([]byte("0xzz")))
		})
	})
}

// =============================================================================
// Handlers without the middleware chain
// =============================================================================
// Mounting a handler on a bare chi router lets tests inject the principal and
// request clock directly.

func (s *HandlerSuite) TestProfileHandlerWithInjectedContext() {
	s.build(authz.NewRoleAuthorizer("advisor"))
	pinned := time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)

	id := s.createProfile("a", "b", "c")

	s.Run("pinned request time lands on the profile", func() {
		body := createProfileRequest{
			Assets:          s.encrypt("x"),
			FamilyStructure: s.encrypt("y"),
			TaxJurisdiction: s.encrypt("z"),
		}
		req := testutil.WithRequestTime(testutil.NewJSONRequest(s.T(), http.MethodPost, "/profiles", body), pinned)
		rr := testutil.DoRequest(s.bare, req)
		s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
		profile := testutil.UnmarshalResponse[models.EncryptedProfile](s.T(), rr)
		s.True(pinned.Equal(profile.CreatedAt))
	})

	s.Run("injected advisor may request analysis", func() {
		req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, "/profiles/"+id.String()+"/analysis"), "carol", "advisor")
		rr := testutil.DoRequest(s.bare, req)
		s.Equal(http.StatusAccepted, rr.Code, rr.Body.String())
	})

	s.Run("injected viewer is forbidden", func() {
		req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, "/profiles/"+id.String()+"/analysis"), "dave", "viewer")
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.bare, req), http.StatusForbidden, "forbidden")
	})
}
