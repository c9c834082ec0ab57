package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/tasktune/fatigue/internal/adapters/http/api"
	service "github.com/tasktune/fatigue/internal/app"
	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/internal/domain/scoring"
	"github.com/tasktune/fatigue/pkg/logger"
)

const referenceCheckpoint = "../../../../testdata/reference_checkpoint.json"

// mockDependencies records every vector it is asked to score.
type mockDependencies struct {
	mu      sync.Mutex
	ready   bool
	calls   []model.FeatureVector
	fatigue float64
	err     error
}

func (m *mockDependencies) Predict(_ context.Context, in model.FeatureVector) (scoring.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	if m.err != nil {
		return scoring.Result{}, m.err
	}
	return scoring.Result{Fatigue: m.fatigue}, nil
}

func (m *mockDependencies) Ready() bool { return m.ready }

func (m *mockDependencies) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newHandler(deps api.Dependencies, opts ...api.Option) http.Handler {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"predictions": 3}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return server.Wrap(mux)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) (string, string) {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code, body.Message
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		So(logger.Init(), ShouldBeNil)
		deps := &mockDependencies{ready: true, fatigue: 37.5}
		h := newHandler(deps)

		Convey("Then health endpoint reports ok", func() {
			w := do(h, http.MethodGet, "/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"ok":true}`)
		})

		Convey("And stats endpoint should be accessible", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"predictions":3`)
		})

		Convey("And metrics endpoint exposes the private registry", func() {
			_ = do(h, http.MethodGet, "/health", "")
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "tasktune_fatigue_http_requests_total")
		})

		Convey("And unknown paths are not found", func() {
			w := do(h, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And wrong methods are rejected", func() {
			So(do(h, http.MethodGet, "/predict", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodPost, "/health", "{}").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodDelete, "/stats", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("And a nil mux panics", func() {
			server := api.NewServer(deps, nil)
			So(func() { server.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestPredictHandler(t *testing.T) {
	Convey("Given a ready predictor", t, func() {
		So(logger.Init(), ShouldBeNil)
		deps := &mockDependencies{ready: true, fatigue: 61.25}
		h := newHandler(deps, api.WithMaxBodyBytes(256))

		Convey("When posting a valid feature vector", func() {
			w := do(h, http.MethodPost, "/predict", `{"met": 5.5, "duration_min": 30, "preference01": 0.4}`)

			Convey("Then the fatigue score is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"fatigue":61.25}`)
				So(deps.calls, ShouldHaveLength, 1)
				So(deps.calls[0], ShouldResemble, model.FeatureVector{MET: 5.5, DurationMin: 30, Preference01: 0.4})
			})
		})

		Convey("When duration_min is written as an integral float", func() {
			w := do(h, http.MethodPost, "/predict", `{"met": 1, "duration_min": 30.0, "preference01": 0}`)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.calls[0].DurationMin, ShouldEqual, 30)
			})
		})

		badBodies := map[string]string{
			"malformed JSON":      `{"met": `,
			"missing met":         `{"duration_min": 30, "preference01": 0.4}`,
			"missing duration":    `{"met": 1, "preference01": 0.4}`,
			"missing preference":  `{"met": 1, "duration_min": 30}`,
			"fractional duration": `{"met": 1, "duration_min": 30.5, "preference01": 0.4}`,
			"string met":          `{"met": "high", "duration_min": 30, "preference01": 0.4}`,
			"unknown field":       `{"met": 1, "duration_min": 30, "preference01": 0.4, "age": 40}`,
			"two objects":         `{"met": 1, "duration_min": 30, "preference01": 0.4}{}`,
			"huge duration":       `{"met": 1, "duration_min": 1e12, "preference01": 0.4}`,
		}
		for name, body := range badBodies {
			Convey("When the body has "+name, func() {
				w := do(h, http.MethodPost, "/predict", body)

				Convey("Then it is a bad request and nothing is scored", func() {
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					code, msg := decodeError(w)
					So(code, ShouldEqual, "bad_request")
					So(msg, ShouldNotBeEmpty)
					So(deps.callCount(), ShouldEqual, 0)
				})
			})
		}

		Convey("When the body exceeds the limit", func() {
			body := fmt.Sprintf(`{"met": 1, "duration_min": 30, "preference01": 0.4, "pad": "%s"}`, strings.Repeat("x", 512))
			w := do(h, http.MethodPost, "/predict", body)

			Convey("Then it is rejected as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				code, _ := decodeError(w)
				So(code, ShouldEqual, "body_too_large")
			})
		})
	})

	Convey("Given a predictor that fails", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("When it reports a validation error", func() {
			deps := &mockDependencies{ready: true, err: &scoring.ValidationError{Field: "met", Value: -1, Reason: "must be >= 0"}}
			w := do(newHandler(deps), http.MethodPost, "/predict", `{"met": -1, "duration_min": 10, "preference01": 0.5}`)

			Convey("Then a 400 carries a readable message", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				code, msg := decodeError(w)
				So(code, ShouldEqual, "validation_error")
				So(msg, ShouldContainSubstring, "met=-1 must be >= 0")
				So(msg, ShouldNotContainSubstring, "api.predict")
			})
		})

		Convey("When it reports an inference error", func() {
			deps := &mockDependencies{ready: true, err: &scoring.InferenceError{Op: "forward", Err: errors.New("shape mismatch")}}
			w := do(newHandler(deps), http.MethodPost, "/predict", `{"met": 1, "duration_min": 10, "preference01": 0.5}`)

			Convey("Then it is also a 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				code, msg := decodeError(w)
				So(code, ShouldEqual, "inference_error")
				So(msg, ShouldContainSubstring, "shape mismatch")
			})
		})

		Convey("When it fails in an unexpected way", func() {
			deps := &mockDependencies{ready: true, err: errors.New("boom")}
			w := do(newHandler(deps), http.MethodPost, "/predict", `{"met": 1, "duration_min": 10, "preference01": 0.5}`)

			Convey("Then it is a 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the model is not loaded", func() {
			deps := &mockDependencies{ready: false}
			h := newHandler(deps)

			Convey("Then predict reports unavailable while health stays fixed", func() {
				So(do(h, http.MethodPost, "/predict", `{"met": 1, "duration_min": 10, "preference01": 0.5}`).Code, ShouldEqual, http.StatusServiceUnavailable)
				So(do(h, http.MethodGet, "/health", "").Code, ShouldEqual, http.StatusOK)
				So(deps.callCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the wrapped handler", t, func() {
		So(logger.Init(), ShouldBeNil)
		deps := &mockDependencies{ready: true, fatigue: 10}

		Convey("When no request id is supplied", func() {
			w := do(newHandler(deps), http.MethodGet, "/health", "")

			Convey("Then one is generated", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldHaveLength, 36)
			})
		})

		Convey("When a request id is supplied", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "probe-42")
			w := httptest.NewRecorder()
			newHandler(deps).ServeHTTP(w, req)

			Convey("Then it is echoed", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "probe-42")
			})
		})

		Convey("When a browser sends a preflight with the default origins", func() {
			req := httptest.NewRequest(http.MethodOptions, "/predict", http.NoBody)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			newHandler(deps).ServeHTTP(w, req)

			Convey("Then it is answered with 204 and wildcard CORS", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
				So(w.Header().Get("Access-Control-Allow-Methods"), ShouldContainSubstring, "POST")
				So(deps.callCount(), ShouldEqual, 0)
			})
		})

		Convey("When origins are restricted", func() {
			h := newHandler(deps, api.WithAllowedOrigins([]string{"https://app.example"}))

			allowed := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
			allowed.Header.Set("Origin", "https://app.example")
			wa := httptest.NewRecorder()
			h.ServeHTTP(wa, allowed)

			denied := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
			denied.Header.Set("Origin", "https://evil.example")
			wd := httptest.NewRecorder()
			h.ServeHTTP(wd, denied)

			Convey("Then only the listed origin is echoed", func() {
				So(wa.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://app.example")
				So(wd.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
			})
		})
	})
}

func TestEndToEndWithReferenceCheckpoint(t *testing.T) {
	Convey("Given the service started on the reference checkpoint", t, func() {
		So(logger.Init(), ShouldBeNil)
		svc := service.New(service.WithCheckpointPath(referenceCheckpoint))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		server := api.NewServer(svc, svc)
		mux := http.NewServeMux()
		server.Register(context.Background(), mux)
		h := server.Wrap(mux)

		Convey("When scoring the all-zero vector", func() {
			w := do(h, http.MethodPost, "/predict", `{"met": 0, "duration_min": 0, "preference01": 0}`)
			var out struct {
				Fatigue float64 `json:"fatigue"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)

			Convey("Then it matches the pinned reference value", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(math.Abs(out.Fatigue-44.18279485505773), ShouldBeLessThan, 1e-9)
			})
		})

		Convey("When scoring an out-of-range vector", func() {
			w := do(h, http.MethodPost, "/predict", `{"met": -1, "duration_min": 10, "preference01": 0.5}`)

			Convey("Then it is a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				code, _ := decodeError(w)
				So(code, ShouldEqual, "validation_error")
			})
		})

		Convey("When scoring an extreme duration", func() {
			w := do(h, http.MethodPost, "/predict", `{"met": 5, "duration_min": 9999, "preference01": 1.0}`)
			var out struct {
				Fatigue float64 `json:"fatigue"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)

			Convey("Then the score stays within [0,100]", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(out.Fatigue, ShouldBeBetweenOrEqual, 0, 100)
			})
		})
	})
}
